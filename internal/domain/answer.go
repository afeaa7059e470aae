package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Chunk statuses. A conversation's chunk sequence is terminated by exactly
// one DONE chunk; failures are reported as a DONE chunk with IsError set so
// subscribers never block forever.
const (
	StatusStarting   = "STARTING"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// ErrMalformedAnswerID reports an answer id missing the required
// "<subjectId>.<token>" structure.
var ErrMalformedAnswerID = errors.New("domain: answer id must be of the form <subjectId>.<token>")

// AnswerID is the parsed correlation key for one conversation. The subject id
// prefix is the sole ownership capability: an operation referencing an
// AnswerID is valid only for the caller whose subject id matches.
type AnswerID struct {
	SubjectID string
	Token     string
}

// ParseAnswerID validates and splits a raw answer id exactly once at the
// boundary. Code past the boundary works with the structured value and never
// re-parses the raw string.
func ParseAnswerID(raw string) (AnswerID, error) {
	raw = strings.TrimSpace(raw)
	subject, token, ok := strings.Cut(raw, ".")
	if !ok || subject == "" || token == "" {
		return AnswerID{}, fmt.Errorf("%w: %q", ErrMalformedAnswerID, raw)
	}
	return AnswerID{SubjectID: subject, Token: token}, nil
}

// OwnedBy reports whether the answer belongs to the given subject.
func (id AnswerID) OwnedBy(subjectID string) bool {
	return subjectID != "" && id.SubjectID == subjectID
}

// String returns the wire form of the answer id.
func (id AnswerID) String() string {
	return id.SubjectID + "." + id.Token
}

// AnswerChunk is one increment of a generated answer. Chunks are immutable
// after publish.
type AnswerChunk struct {
	AnswerID string `json:"answerId"`
	Text     string `json:"answerChunk"`
	Status   string `json:"answerStatus"`
	IsError  bool   `json:"isError,omitempty"`
}

// Terminal reports whether this chunk ends the conversation's stream.
func (c AnswerChunk) Terminal() bool {
	return c.Status == StatusDone
}
