package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"tenant-assistant/internal/domain"
)

// Tool paths the agent's action group may call.
const (
	policiesPath = "/policies"
	ordersPath   = "/orders"
)

// TenantData reads a tenant's configuration and order rows. Implemented by
// repository.TenantDataClient.
type TenantData interface {
	GetConfig(ctx context.Context, tenantID string) (domain.TenantConfig, error)
	GetOrders(ctx context.Context, cfg domain.TenantConfig, userID string) ([]domain.Order, error)
}

// TenantDataFactory builds a TenantData bound to one scoped credential. A
// fresh client per invocation keeps one tool call's credential from serving
// the next.
type TenantDataFactory func(ctx context.Context, scope domain.ScopedCredentials) (TenantData, error)

// AgentDataEvent is the action-group invocation payload the agent runtime
// sends. The scoped credential and caller identity arrive as session
// attributes, planted by the orchestrator at invoke time.
type AgentDataEvent struct {
	MessageVersion    string            `json:"messageVersion"`
	ActionGroup       string            `json:"actionGroup"`
	APIPath           string            `json:"apiPath"`
	HTTPMethod        string            `json:"httpMethod"`
	SessionAttributes map[string]string `json:"sessionAttributes"`
}

// AgentDataResponse is the action-group response envelope.
type AgentDataResponse struct {
	MessageVersion string            `json:"messageVersion"`
	Response       agentDataResponse `json:"response"`
}

type agentDataResponse struct {
	ActionGroup    string                  `json:"actionGroup"`
	APIPath        string                  `json:"apiPath"`
	HTTPMethod     string                  `json:"httpMethod"`
	HTTPStatusCode int                     `json:"httpStatusCode"`
	ResponseBody   map[string]responseBody `json:"responseBody"`
}

type responseBody struct {
	Body string `json:"body"`
}

// AgentData is the Lambda handler behind the agent's data tools. Every read
// it performs uses the scoped credential from the session attributes, never
// the function's own role, so a confused or compromised agent still cannot
// read past its tenant.
type AgentData struct {
	tenantData TenantDataFactory
	logger     *slog.Logger
}

// NewAgentData creates an AgentData handler.
func NewAgentData(tenantData TenantDataFactory, logger *slog.Logger) (*AgentData, error) {
	if tenantData == nil {
		return nil, errors.New("handler: tenant data factory must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentData{tenantData: tenantData, logger: logger}, nil
}

// Handle serves one tool call. Errors are returned to the agent runtime as
// non-200 tool responses rather than Lambda errors so the agent can tell the
// user the tool failed instead of hanging the turn.
func (a *AgentData) Handle(ctx context.Context, event AgentDataEvent) (AgentDataResponse, error) {
	scope, identity, err := sessionScope(event.SessionAttributes)
	if err != nil {
		a.logger.Error("rejecting tool call without a usable session scope", "apiPath", event.APIPath, "err", err)
		return toolResponse(event, http.StatusForbidden, map[string]string{"error": "missing or incomplete session credentials"}), nil
	}

	data, err := a.tenantData(ctx, scope)
	if err != nil {
		a.logger.Error("failed to build tenant data client", "tenantId", scope.TenantID, "err", err)
		return toolResponse(event, http.StatusInternalServerError, map[string]string{"error": "tenant data unavailable"}), nil
	}

	cfg, err := data.GetConfig(ctx, scope.TenantID)
	if err != nil {
		a.logger.Error("failed to read tenant configuration", "tenantId", scope.TenantID, "err", err)
		return toolResponse(event, http.StatusInternalServerError, map[string]string{"error": "tenant configuration unavailable"}), nil
	}

	switch event.APIPath {
	case policiesPath:
		return toolResponse(event, http.StatusOK, map[string]any{
			"policies": map[string]string{
				"returns": fmt.Sprintf("You can return items up to %d days", cfg.Policies.Returns.Days),
			},
		}), nil
	case ordersPath:
		orders, err := data.GetOrders(ctx, cfg, identity.SubjectID)
		if err != nil {
			a.logger.Error("failed to read orders", "tenantId", scope.TenantID, "err", err)
			return toolResponse(event, http.StatusInternalServerError, map[string]string{"error": "orders unavailable"}), nil
		}
		return toolResponse(event, http.StatusOK, map[string]any{"orders": orders}), nil
	default:
		a.logger.Warn("unknown tool path", "apiPath", event.APIPath)
		return toolResponse(event, http.StatusNotFound, map[string]string{"error": "unknown tool path"}), nil
	}
}

// sessionScope extracts the scoped credential and caller identity from the
// session attributes. All five attributes are required.
func sessionScope(attrs map[string]string) (domain.ScopedCredentials, domain.IdentityClaims, error) {
	scope := domain.ScopedCredentials{
		AccessKeyID:     strings.TrimSpace(attrs["accessKeyId"]),
		SecretAccessKey: strings.TrimSpace(attrs["secretAccessKey"]),
		SessionToken:    strings.TrimSpace(attrs["sessionToken"]),
		TenantID:        strings.TrimSpace(attrs["tenantId"]),
	}
	identity := domain.IdentityClaims{
		SubjectID: strings.TrimSpace(attrs["userId"]),
		TenantID:  scope.TenantID,
	}
	if scope.TenantID == "" || identity.SubjectID == "" ||
		scope.AccessKeyID == "" || scope.SecretAccessKey == "" || scope.SessionToken == "" {
		return domain.ScopedCredentials{}, domain.IdentityClaims{}, errors.New("handler: incomplete session attributes")
	}
	return scope, identity, nil
}

func toolResponse(event AgentDataEvent, status int, body any) AgentDataResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"response encoding failed"}`)
	}
	messageVersion := event.MessageVersion
	if messageVersion == "" {
		messageVersion = "1.0"
	}
	return AgentDataResponse{
		MessageVersion: messageVersion,
		Response: agentDataResponse{
			ActionGroup:    event.ActionGroup,
			APIPath:        event.APIPath,
			HTTPMethod:     event.HTTPMethod,
			HTTPStatusCode: status,
			ResponseBody: map[string]responseBody{
				"application/json": {Body: string(payload)},
			},
		},
	}
}
