// Package handler holds the Lambda entry points: the worker consuming
// relayed prompt events and the agent data task serving the agent's tool
// calls.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"tenant-assistant/internal/domain"
	"tenant-assistant/internal/integrations/eventbridge"
)

// PromptEventHandler is the orchestration usecase behind the worker.
// Implemented by usecase.Orchestrator.
type PromptEventHandler interface {
	HandlePromptEvent(ctx context.Context, event domain.PromptEvent) error
}

// Worker is the Lambda handler for prompt events delivered off the bus.
type Worker struct {
	orchestrator PromptEventHandler
	logger       *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(orchestrator PromptEventHandler, logger *slog.Logger) (*Worker, error) {
	if orchestrator == nil {
		return nil, errors.New("handler: orchestrator must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{orchestrator: orchestrator, logger: logger}, nil
}

// Handle processes one delivered event. Delivery is at least once; the
// orchestrator treats a redelivered answer id as a no-op, so returning nil on
// duplicates keeps the bus from retrying them forever.
func (w *Worker) Handle(ctx context.Context, event events.CloudWatchEvent) error {
	if event.DetailType != eventbridge.DetailType {
		w.logger.Warn("ignoring event with unexpected detail-type", "detailType", event.DetailType)
		return nil
	}

	prompt, err := eventbridge.DecodeDetail(event.Detail)
	if err != nil {
		// A payload that cannot be decoded will not decode on redelivery
		// either, so it is dropped rather than returned for retry.
		w.logger.Error("dropping undecodable prompt event", "err", err)
		return nil
	}

	w.logger.Info("handling prompt event", "answerId", prompt.AnswerID, "tenantId", prompt.Identity.TenantID)
	if err := w.orchestrator.HandlePromptEvent(ctx, prompt); err != nil {
		return fmt.Errorf("handler: prompt event %s: %w", prompt.AnswerID, err)
	}
	return nil
}
