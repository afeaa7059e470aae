package usecase

import (
	"context"
	"errors"
	"strings"

	"tenant-assistant/internal/domain"
)

const defaultMaxPrompt = 4000

// PromptRelay hands submitted prompts to the asynchronous event relay.
type PromptRelay interface {
	Publish(ctx context.Context, event domain.PromptEvent) error
}

// AnswerStore persists the most recent chunk per answer id for point reads
// and late-subscriber catch-up.
type AnswerStore interface {
	PutLatestChunk(ctx context.Context, chunk domain.AnswerChunk) error
	GetLatestChunk(ctx context.Context, answerID string) (domain.AnswerChunk, bool, error)
}

// ChunkFanout delivers published chunks to active subscribers of the exact
// answer id.
type ChunkFanout interface {
	Subscribe(answerID string) (<-chan domain.AnswerChunk, func())
	Publish(chunk domain.AnswerChunk)
}

// IngressService implements the authorized entry operations. The ownership
// rule is uniform: a caller may only touch answer ids whose subject prefix is
// their own. The answer id is parsed exactly once here; everything downstream
// works with the raw string as an opaque, already-validated key.
type IngressService struct {
	relay     PromptRelay
	store     AnswerStore
	fanout    ChunkFanout
	maxPrompt int
}

// NewIngressService creates an IngressService.
func NewIngressService(relay PromptRelay, store AnswerStore, fanout ChunkFanout, maxPrompt int) (*IngressService, error) {
	if relay == nil {
		return nil, errors.New("usecase: relay must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: answer store must not be nil")
	}
	if fanout == nil {
		return nil, errors.New("usecase: fanout must not be nil")
	}
	if maxPrompt <= 0 {
		maxPrompt = defaultMaxPrompt
	}
	return &IngressService{relay: relay, store: store, fanout: fanout, maxPrompt: maxPrompt}, nil
}

// SubmitPrompt validates ownership, optionally echoes a STARTING chunk so the
// subscriber sees the lifecycle from the first moment, and hands the prompt
// to the relay. It returns once the event is durably accepted; completion is
// observed via subscription or polling, never by waiting here.
func (s *IngressService) SubmitPrompt(ctx context.Context, claims domain.IdentityClaims, rawAnswerID, prompt, initialStatus string) error {
	answerID, err := s.authorize(claims, rawAnswerID)
	if err != nil {
		return err
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return newError(ErrorInvalidInput, "empty_prompt", nil)
	}
	if len(prompt) > s.maxPrompt {
		return newError(ErrorInvalidInput, "prompt_too_long", nil)
	}

	if initialStatus != "" {
		if initialStatus != domain.StatusStarting {
			return newError(ErrorInvalidInput, "invalid_initial_status", nil)
		}
		if err := s.publish(ctx, domain.AnswerChunk{AnswerID: answerID.String(), Status: domain.StatusStarting}); err != nil {
			return err
		}
	}

	event := domain.PromptEvent{
		AnswerID: answerID.String(),
		Prompt:   prompt,
		Identity: claims,
	}
	if err := s.relay.Publish(ctx, event); err != nil {
		return newError(ErrorInternal, "relay_publish_error", err)
	}
	return nil
}

// PublishChunk records and fans out one chunk. There is no ownership check
// against end-user claims on this path: it is reachable only by the trusted
// orchestrator principal, which the transport layer authenticates separately.
func (s *IngressService) PublishChunk(ctx context.Context, chunk domain.AnswerChunk) error {
	if _, err := domain.ParseAnswerID(chunk.AnswerID); err != nil {
		// A malformed key here means a bug in the orchestrator, not caller input.
		return newError(ErrorInternal, "malformed_answer_id", err)
	}
	switch chunk.Status {
	case domain.StatusStarting, domain.StatusInProgress, domain.StatusDone:
	default:
		return newError(ErrorInternal, "invalid_chunk_status", nil)
	}
	return s.publish(ctx, chunk)
}

// GetLatestAnswer returns the most recent chunk for the caller's answer id.
// The second return value is false when nothing has been published yet.
func (s *IngressService) GetLatestAnswer(ctx context.Context, claims domain.IdentityClaims, rawAnswerID string) (domain.AnswerChunk, bool, error) {
	answerID, err := s.authorize(claims, rawAnswerID)
	if err != nil {
		return domain.AnswerChunk{}, false, err
	}
	chunk, found, err := s.store.GetLatestChunk(ctx, answerID.String())
	if err != nil {
		return domain.AnswerChunk{}, false, newError(ErrorInternal, "answer_read_error", err)
	}
	return chunk, found, nil
}

// SubscribeToAnswer opens a live, ordered chunk stream for the caller's
// answer id. The stream ends with a terminal chunk; the returned cancel
// releases the registration and must be called when the caller disconnects.
func (s *IngressService) SubscribeToAnswer(_ context.Context, claims domain.IdentityClaims, rawAnswerID string) (<-chan domain.AnswerChunk, func(), error) {
	answerID, err := s.authorize(claims, rawAnswerID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.fanout.Subscribe(answerID.String())
	return ch, cancel, nil
}

// authorize parses the raw answer id and enforces the ownership prefix rule.
func (s *IngressService) authorize(claims domain.IdentityClaims, rawAnswerID string) (domain.AnswerID, error) {
	answerID, err := domain.ParseAnswerID(rawAnswerID)
	if err != nil {
		return domain.AnswerID{}, newError(ErrorMalformedKey, "malformed_answer_id", err)
	}
	if !answerID.OwnedBy(claims.SubjectID) {
		return domain.AnswerID{}, newError(ErrorUnauthorized, "answer_id_not_owned", nil)
	}
	return answerID, nil
}

// publish stores the latest state first, then pushes to live subscribers, so
// a poll immediately after a missed push still observes the chunk.
func (s *IngressService) publish(ctx context.Context, chunk domain.AnswerChunk) error {
	if err := s.store.PutLatestChunk(ctx, chunk); err != nil {
		return newError(ErrorInternal, "answer_write_error", err)
	}
	s.fanout.Publish(chunk)
	return nil
}
