// Package gateway exposes the ingress operations over HTTP: prompt
// submission, latest-answer reads and SSE subscriptions for end users, and a
// separately authenticated internal publish operation for the orchestrator.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tenant-assistant/internal/domain"
	"tenant-assistant/internal/usecase"
)

// IngressAPI is the usecase surface the server fronts.
type IngressAPI interface {
	SubmitPrompt(ctx context.Context, claims domain.IdentityClaims, rawAnswerID, prompt, initialStatus string) error
	PublishChunk(ctx context.Context, chunk domain.AnswerChunk) error
	GetLatestAnswer(ctx context.Context, claims domain.IdentityClaims, rawAnswerID string) (domain.AnswerChunk, bool, error)
	SubscribeToAnswer(ctx context.Context, claims domain.IdentityClaims, rawAnswerID string) (<-chan domain.AnswerChunk, func(), error)
}

// TokenVerifier authenticates end-user bearer tokens.
type TokenVerifier interface {
	Verify(token string) (domain.IdentityClaims, error)
}

// SecretGetter loads the internal publisher secret. Implemented by
// paramstore.Client.
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type claimsKey struct{}

// Server routes ingress traffic. End-user operations require a verified
// token; the publish operation requires the publisher secret and is never
// reachable with an end-user token.
type Server struct {
	ingress     IngressAPI
	verifier    TokenVerifier
	secrets     SecretGetter
	paramPrefix string
	logger      *slog.Logger

	secretOnce sync.Once
	secret     string
	secretErr  error
}

// NewServer creates a Server.
func NewServer(ingress IngressAPI, verifier TokenVerifier, secrets SecretGetter, paramPrefix string, logger *slog.Logger) (*Server, error) {
	if ingress == nil {
		return nil, errors.New("gateway: ingress must not be nil")
	}
	if verifier == nil {
		return nil, errors.New("gateway: token verifier must not be nil")
	}
	if secrets == nil {
		return nil, errors.New("gateway: secret getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gateway: parameter prefix must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ingress:     ingress,
		verifier:    verifier,
		secrets:     secrets,
		paramPrefix: paramPrefix,
		logger:      logger,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.correlationMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuthMiddleware)
		r.Post("/v1/prompts", s.handleSubmitPrompt)
		r.Get("/v1/answers/{answerID}", s.handleGetLatestAnswer)
		r.Get("/v1/answers/{answerID}/stream", s.handleSubscribe)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.publisherAuthMiddleware)
		r.Post("/internal/v1/chunks", s.handlePublishChunk)
	})

	return r
}

func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		w.Header().Set("X-Correlation-Id", correlationID)
		next.ServeHTTP(w, r)
	})
}

// userAuthMiddleware verifies the bearer token and stores the caller's
// identity claims in the request context.
func (s *Server) userAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.verifier.Verify(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, usecase.ErrorUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// publisherAuthMiddleware admits only the orchestrator's publisher secret,
// compared in constant time. User tokens never pass here.
func (s *Server) publisherAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, err := s.publisherSecret(r.Context())
		if err != nil {
			s.logger.Error("failed to load publisher secret", "err", err)
			writeError(w, http.StatusInternalServerError, usecase.ErrorInternal)
			return
		}
		presented := bearerToken(r)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			writeError(w, http.StatusUnauthorized, usecase.ErrorUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type submitPromptRequest struct {
	AnswerID     string `json:"answerId"`
	Prompt       string `json:"prompt"`
	AnswerStatus string `json:"answerStatus,omitempty"`
}

func (s *Server) handleSubmitPrompt(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, usecase.ErrorUnauthorized)
		return
	}

	var req submitPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, usecase.ErrorInvalidInput)
		return
	}

	if err := s.ingress.SubmitPrompt(r.Context(), claims, req.AnswerID, req.Prompt, req.AnswerStatus); err != nil {
		s.writeUsecaseError(w, err)
		return
	}

	// Accepted, not completed: the agent run proceeds asynchronously.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"answerId": req.AnswerID})
}

func (s *Server) handleGetLatestAnswer(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, usecase.ErrorUnauthorized)
		return
	}

	chunk, found, err := s.ingress.GetLatestAnswer(r.Context(), claims, chi.URLParam(r, "answerID"))
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chunk)
}

// handleSubscribe streams chunks as server-sent events until a terminal
// chunk arrives or the client disconnects. Disconnecting releases the
// fanout registration.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, usecase.ErrorUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, usecase.ErrorInternal)
		return
	}

	ch, cancel, err := s.ingress.SubscribeToAnswer(r.Context(), claims, chi.URLParam(r, "answerID"))
	if err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case chunk, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(chunk)
			if err != nil {
				s.logger.Error("failed to marshal chunk", "answerId", chunk.AnswerID, "err", err)
				return
			}
			if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
			if chunk.Terminal() {
				return
			}
		}
	}
}

func (s *Server) handlePublishChunk(w http.ResponseWriter, r *http.Request) {
	var chunk domain.AnswerChunk
	if err := json.NewDecoder(r.Body).Decode(&chunk); err != nil {
		writeError(w, http.StatusBadRequest, usecase.ErrorInvalidInput)
		return
	}

	if err := s.ingress.PublishChunk(r.Context(), chunk); err != nil {
		s.writeUsecaseError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"answerId": chunk.AnswerID})
}

func (s *Server) publisherSecret(ctx context.Context) (string, error) {
	s.secretOnce.Do(func() {
		s.secret, s.secretErr = s.secrets.GetParameter(ctx, s.paramPrefix+"/publisher_secret")
	})
	return s.secret, s.secretErr
}

func (s *Server) writeUsecaseError(w http.ResponseWriter, err error) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		s.logger.Error("unexpected ingress error", "err", err)
		writeError(w, http.StatusInternalServerError, usecase.ErrorInternal)
		return
	}
	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorUnauthorized:
		status = http.StatusForbidden
	case usecase.ErrorMalformedKey, usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorCredentialDenied:
		status = http.StatusForbidden
	case usecase.ErrorCapabilityFailure:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("ingress error", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	writeError(w, status, ucErr.Code)
}

func writeError(w http.ResponseWriter, status int, code usecase.ErrorCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": string(code)})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func claimsFrom(ctx context.Context) (domain.IdentityClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(domain.IdentityClaims)
	return claims, ok
}
