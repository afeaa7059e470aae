package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tenant-assistant/internal/domain"
)

const defaultAssumeTimeout = 15 * time.Second

// failedAnswerText is the terminal chunk body for failed runs. Partial chunks
// already delivered stay valid; this only closes the stream.
const failedAnswerText = "The assistant could not complete this request."

// RunStore persists orchestrator run state per answer id. ClaimRun must
// succeed at most once per answer id and report domain.ErrDuplicateDelivery
// afterwards.
type RunStore interface {
	ClaimRun(ctx context.Context, answerID, tenantID string) error
	SetRunStatus(ctx context.Context, answerID, status string) error
}

// CredentialBroker exchanges the orchestrator's own identity for a
// tenant-scoped credential. The trust boundary here is orchestrator to
// broker; the end user's identity was already checked at the ingress.
type CredentialBroker interface {
	Assume(ctx context.Context, tenantID string) (domain.ScopedCredentials, error)
}

// TenantDirectory reads a tenant's configuration.
type TenantDirectory interface {
	GetConfig(ctx context.Context, tenantID string) (domain.TenantConfig, error)
}

// TenantDirectoryFactory builds a directory bound to one scoped credential.
// A fresh directory per run keeps credentials from outliving the run or
// leaking across answer ids.
type TenantDirectoryFactory func(scope domain.ScopedCredentials) (TenantDirectory, error)

// AgentInvoker is the opaque agent capability: it emits text chunks in
// generation order and returns once the sequence is complete.
type AgentInvoker interface {
	Invoke(ctx context.Context, req domain.AgentRequest, emit func(ctx context.Context, text string) error) error
}

// ChunkPublisher pushes chunks back through the ingress gateway.
type ChunkPublisher interface {
	PublishChunk(ctx context.Context, chunk domain.AnswerChunk) error
}

// Orchestrator consumes relayed prompt events and drives one run per answer
// id through RECEIVED, CREDENTIAL_ACQUIRED, GENERATING and COMPLETED, or
// FAILED from any of them. It is the single writer of chunks for its answer
// id: publishes happen one at a time, in generation order.
type Orchestrator struct {
	runs          RunStore
	broker        CredentialBroker
	directory     TenantDirectoryFactory
	agent         AgentInvoker
	publisher     ChunkPublisher
	assumeTimeout time.Duration
	logger        *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(runs RunStore, broker CredentialBroker, directory TenantDirectoryFactory, agent AgentInvoker, publisher ChunkPublisher, assumeTimeout time.Duration, logger *slog.Logger) (*Orchestrator, error) {
	if runs == nil {
		return nil, errors.New("usecase: run store must not be nil")
	}
	if broker == nil {
		return nil, errors.New("usecase: credential broker must not be nil")
	}
	if directory == nil {
		return nil, errors.New("usecase: tenant directory factory must not be nil")
	}
	if agent == nil {
		return nil, errors.New("usecase: agent invoker must not be nil")
	}
	if publisher == nil {
		return nil, errors.New("usecase: chunk publisher must not be nil")
	}
	if assumeTimeout <= 0 {
		assumeTimeout = defaultAssumeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runs:          runs,
		broker:        broker,
		directory:     directory,
		agent:         agent,
		publisher:     publisher,
		assumeTimeout: assumeTimeout,
		logger:        logger,
	}, nil
}

// HandlePromptEvent processes one relayed prompt event. A redelivered event
// for an already-claimed answer id returns nil without starting a second run.
// Whole-run retries are never attempted here; redelivery by the relay is the
// only retry mechanism.
func (o *Orchestrator) HandlePromptEvent(ctx context.Context, event domain.PromptEvent) error {
	if _, err := domain.ParseAnswerID(event.AnswerID); err != nil {
		// The ingress rejects malformed keys before they reach the relay.
		return newError(ErrorInternal, "malformed_answer_id", err)
	}
	tenantID := event.Identity.TenantID
	if tenantID == "" || event.Identity.SubjectID == "" {
		return newError(ErrorInternal, "missing_identity_claims", nil)
	}

	if err := o.runs.ClaimRun(ctx, event.AnswerID, tenantID); err != nil {
		if errors.Is(err, domain.ErrDuplicateDelivery) {
			o.logger.Info("duplicate prompt event ignored", "answerId", event.AnswerID)
			return nil
		}
		return newError(ErrorInternal, "run_claim_error", err)
	}

	assumeCtx, cancel := context.WithTimeout(ctx, o.assumeTimeout)
	creds, err := o.broker.Assume(assumeCtx, tenantID)
	cancel()
	if err != nil {
		return o.fail(ctx, event.AnswerID, newError(ErrorCredentialDenied, "credential_scope_denied", err))
	}
	if err := o.runs.SetRunStatus(ctx, event.AnswerID, domain.RunCredentialAcquired); err != nil {
		return o.fail(ctx, event.AnswerID, newError(ErrorInternal, "run_status_error", err))
	}

	dir, err := o.directory(creds)
	if err != nil {
		return o.fail(ctx, event.AnswerID, newError(ErrorInternal, "tenant_directory_error", err))
	}
	cfg, err := dir.GetConfig(ctx, tenantID)
	if err != nil {
		return o.fail(ctx, event.AnswerID, newError(ErrorInternal, "tenant_config_error", err))
	}

	if err := o.runs.SetRunStatus(ctx, event.AnswerID, domain.RunGenerating); err != nil {
		return o.fail(ctx, event.AnswerID, newError(ErrorInternal, "run_status_error", err))
	}

	req := domain.AgentRequest{
		AnswerID:    event.AnswerID,
		Prompt:      event.Prompt,
		Identity:    event.Identity,
		Credentials: creds,
		Config:      cfg,
	}
	// One publish in flight at a time: emit runs sequentially on this
	// goroutine, which is what preserves chunk order end to end.
	err = o.agent.Invoke(ctx, req, func(ctx context.Context, text string) error {
		return o.publisher.PublishChunk(ctx, domain.AnswerChunk{
			AnswerID: event.AnswerID,
			Text:     text,
			Status:   domain.StatusInProgress,
		})
	})
	if err != nil {
		return o.fail(ctx, event.AnswerID, newError(ErrorCapabilityFailure, "agent_invoke_error", err))
	}

	done := domain.AnswerChunk{AnswerID: event.AnswerID, Status: domain.StatusDone}
	if err := o.publisher.PublishChunk(ctx, done); err != nil {
		return o.fail(ctx, event.AnswerID, newError(ErrorInternal, "terminal_publish_error", err))
	}
	if err := o.runs.SetRunStatus(ctx, event.AnswerID, domain.RunCompleted); err != nil {
		return newError(ErrorInternal, "run_status_error", err)
	}
	return nil
}

// fail marks the run FAILED and publishes a terminal error chunk so no
// subscriber is left waiting. Bookkeeping failures are logged, not returned;
// the run error itself is what the caller needs to see.
func (o *Orchestrator) fail(ctx context.Context, answerID string, runErr *Error) error {
	if err := o.runs.SetRunStatus(ctx, answerID, domain.RunFailed); err != nil {
		o.logger.Error("failed to record FAILED run state", "answerId", answerID, "err", err)
	}
	terminal := domain.AnswerChunk{
		AnswerID: answerID,
		Text:     failedAnswerText,
		Status:   domain.StatusDone,
		IsError:  true,
	}
	if err := o.publisher.PublishChunk(ctx, terminal); err != nil {
		o.logger.Error("failed to publish terminal error chunk", "answerId", answerID, "err", err)
	}
	return runErr
}
