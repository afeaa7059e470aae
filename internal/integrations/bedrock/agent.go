// Package bedrock adapts a Bedrock agent to the orchestrator's capability
// contract: given a prompt and a tenant-scoped credential, produce an ordered
// sequence of text chunks. The scoped credential and caller identity are
// forwarded as session attributes so the agent's data tools act with exactly
// the tenant's access and never re-derive identity.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"tenant-assistant/internal/domain"
)

// Placeholder ids left by provisioning before an agent is configured.
const (
	placeholderAgentID      = "AGENT_ID"
	placeholderAgentAliasID = "AGENT_ALIAS_ID"
)

const notConfiguredMessage = "Please set AGENT_ID and AGENT_ALIAS_ID in the worker configuration"

// agentAPI is the minimal Bedrock agent runtime interface required by Client.
type agentAPI interface {
	InvokeAgent(ctx context.Context, in *bedrockagentruntime.InvokeAgentInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.InvokeAgentOutput, error)
}

// completionStream is the part of the SDK's event stream the client consumes.
// *bedrockagentruntime.InvokeAgentEventStream satisfies it.
type completionStream interface {
	Events() <-chan types.ResponseStream
	Err() error
	Close() error
}

// Client invokes a Bedrock agent and forwards its completion chunks.
type Client struct {
	api          agentAPI
	agentID      string
	agentAliasID string
}

// New creates a Client for the given agent and alias ids.
func New(api agentAPI, agentID, agentAliasID string) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api must not be nil")
	}
	return &Client{
		api:          api,
		agentID:      strings.TrimSpace(agentID),
		agentAliasID: strings.TrimSpace(agentAliasID),
	}, nil
}

// Invoke runs the agent for one request and calls emit for each completion
// chunk, in generation order. A nil return means the sequence completed; the
// caller appends the terminal marker. When the agent ids are still
// placeholders the operator hint is emitted as the whole answer instead of
// failing the run.
func (c *Client) Invoke(ctx context.Context, req domain.AgentRequest, emit func(ctx context.Context, text string) error) error {
	if c.notConfigured() {
		return emit(ctx, notConfiguredMessage)
	}

	out, err := c.api.InvokeAgent(ctx, &bedrockagentruntime.InvokeAgentInput{
		AgentId:      aws.String(c.agentID),
		AgentAliasId: aws.String(c.agentAliasID),
		SessionId:    aws.String(req.AnswerID),
		InputText:    aws.String(req.Prompt),
		EnableTrace:  aws.Bool(true),
		SessionState: &types.SessionState{
			SessionAttributes: map[string]string{
				"tenantId":        req.Identity.TenantID,
				"userId":          req.Identity.SubjectID,
				"accessKeyId":     req.Credentials.AccessKeyID,
				"secretAccessKey": req.Credentials.SecretAccessKey,
				"sessionToken":    req.Credentials.SessionToken,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("bedrock: invoke agent: %w", err)
	}

	return forwardCompletion(ctx, out.GetStream(), emit)
}

func (c *Client) notConfigured() bool {
	return c.agentID == "" || c.agentID == placeholderAgentID ||
		c.agentAliasID == "" || c.agentAliasID == placeholderAgentAliasID
}

// forwardCompletion drains the completion stream in order, emitting each text
// chunk. The stream is finite and not restartable; any stream error aborts
// the sequence.
func forwardCompletion(ctx context.Context, stream completionStream, emit func(ctx context.Context, text string) error) error {
	defer stream.Close()

	for event := range stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		if len(chunk.Value.Bytes) == 0 {
			continue
		}
		if err := emit(ctx, string(chunk.Value.Bytes)); err != nil {
			return fmt.Errorf("bedrock: emit chunk: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("bedrock: completion stream: %w", err)
	}
	return nil
}
