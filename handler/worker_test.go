package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"tenant-assistant/internal/domain"
)

type fakeOrchestrator struct {
	events []domain.PromptEvent
	err    error
}

func (f *fakeOrchestrator) HandlePromptEvent(_ context.Context, event domain.PromptEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func promptDetail(t *testing.T) json.RawMessage {
	t.Helper()
	detail, err := json.Marshal(map[string]any{
		"arguments": map[string]string{"answerId": "u1.c1", "prompt": "what is your returns policy?"},
		"identity": map[string]any{
			"claims": map[string]string{"sub": "u1", "custom:tenantId": "tenant2"},
		},
	})
	require.NoError(t, err)
	return detail
}

func TestWorker_HandleDeliversDecodedEvent(t *testing.T) {
	orch := &fakeOrchestrator{}
	w, err := NewWorker(orch, nil)
	require.NoError(t, err)

	err = w.Handle(context.Background(), events.CloudWatchEvent{
		DetailType: "newPrompt",
		Detail:     promptDetail(t),
	})
	require.NoError(t, err)

	require.Len(t, orch.events, 1)
	require.Equal(t, "u1.c1", orch.events[0].AnswerID)
	require.Equal(t, "what is your returns policy?", orch.events[0].Prompt)
	require.Equal(t, "tenant2", orch.events[0].Identity.TenantID)
	require.Equal(t, "u1", orch.events[0].Identity.SubjectID)
}

func TestWorker_HandleIgnoresOtherDetailTypes(t *testing.T) {
	orch := &fakeOrchestrator{}
	w, err := NewWorker(orch, nil)
	require.NoError(t, err)

	err = w.Handle(context.Background(), events.CloudWatchEvent{
		DetailType: "somethingElse",
		Detail:     promptDetail(t),
	})
	require.NoError(t, err)
	require.Empty(t, orch.events)
}

func TestWorker_HandleDropsUndecodableDetail(t *testing.T) {
	orch := &fakeOrchestrator{}
	w, err := NewWorker(orch, nil)
	require.NoError(t, err)

	err = w.Handle(context.Background(), events.CloudWatchEvent{
		DetailType: "newPrompt",
		Detail:     json.RawMessage(`{"arguments":{}}`),
	})
	require.NoError(t, err, "undecodable events must not be retried")
	require.Empty(t, orch.events)
}

func TestWorker_HandlePropagatesRunErrors(t *testing.T) {
	orch := &fakeOrchestrator{err: errors.New("model overloaded")}
	w, err := NewWorker(orch, nil)
	require.NoError(t, err)

	err = w.Handle(context.Background(), events.CloudWatchEvent{
		DetailType: "newPrompt",
		Detail:     promptDetail(t),
	})
	require.ErrorContains(t, err, "model overloaded")
}
