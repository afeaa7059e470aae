package domain

// PromptEvent is the message handed to the event relay when a prompt is
// submitted. The identity claims travel with the event so the orchestrator
// never trusts a tenant id supplied in the prompt payload.
type PromptEvent struct {
	AnswerID string         `json:"answerId"`
	Prompt   string         `json:"prompt"`
	Identity IdentityClaims `json:"identity"`
}
