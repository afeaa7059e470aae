// Package eventbridge implements the prompt event relay on an EventBridge
// bus: at-least-once delivery, no ordering across answer ids. Consumers must
// treat redelivered events for an already-claimed answer id as no-ops.
package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"tenant-assistant/internal/domain"
)

// DetailType is the event detail-type for relayed prompt submissions.
const DetailType = "newPrompt"

// eventBridgeAPI is the minimal EventBridge interface required by Relay.
type eventBridgeAPI interface {
	PutEvents(ctx context.Context, in *awseventbridge.PutEventsInput, optFns ...func(*awseventbridge.Options)) (*awseventbridge.PutEventsOutput, error)
}

// detail is the wire envelope on the bus: the caller's arguments and the
// verified identity travel separately so consumers never take the tenant id
// from the argument side.
type detail struct {
	Arguments arguments `json:"arguments"`
	Identity  identity  `json:"identity"`
}

type arguments struct {
	AnswerID string `json:"answerId"`
	Prompt   string `json:"prompt"`
}

type identity struct {
	Claims domain.IdentityClaims `json:"claims"`
}

// Relay publishes prompt events to an EventBridge bus.
type Relay struct {
	api     eventBridgeAPI
	busName string
	source  string
}

// New creates a Relay for the given bus and event source.
func New(api eventBridgeAPI, busName, source string) (*Relay, error) {
	if api == nil {
		return nil, errors.New("eventbridge: api must not be nil")
	}
	if strings.TrimSpace(busName) == "" {
		return nil, errors.New("eventbridge: bus name must not be empty")
	}
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("eventbridge: source must not be empty")
	}
	return &Relay{api: api, busName: busName, source: source}, nil
}

// Publish hands one prompt event to the bus. Returning nil means the event is
// durably accepted; the submit path does not wait for the agent run.
func (r *Relay) Publish(ctx context.Context, event domain.PromptEvent) error {
	payload, err := json.Marshal(detail{
		Arguments: arguments{AnswerID: event.AnswerID, Prompt: event.Prompt},
		Identity:  identity{Claims: event.Identity},
	})
	if err != nil {
		return fmt.Errorf("eventbridge: marshal detail: %w", err)
	}

	out, err := r.api.PutEvents(ctx, &awseventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(r.busName),
				Source:       aws.String(r.source),
				DetailType:   aws.String(DetailType),
				Detail:       aws.String(string(payload)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("eventbridge: put events: %w", err)
	}
	if out.FailedEntryCount > 0 {
		for _, entry := range out.Entries {
			if entry.ErrorCode != nil {
				return fmt.Errorf("eventbridge: entry rejected: %s", aws.ToString(entry.ErrorMessage))
			}
		}
		return errors.New("eventbridge: entry rejected")
	}
	return nil
}

// DecodeDetail parses a relayed detail payload back into a prompt event.
// Used by the worker when the bus delivers an event.
func DecodeDetail(raw json.RawMessage) (domain.PromptEvent, error) {
	var d detail
	if err := json.Unmarshal(raw, &d); err != nil {
		return domain.PromptEvent{}, fmt.Errorf("eventbridge: decode detail: %w", err)
	}
	if d.Arguments.AnswerID == "" {
		return domain.PromptEvent{}, errors.New("eventbridge: detail missing answer id")
	}
	return domain.PromptEvent{
		AnswerID: d.Arguments.AnswerID,
		Prompt:   d.Arguments.Prompt,
		Identity: d.Identity.Claims,
	}, nil
}
