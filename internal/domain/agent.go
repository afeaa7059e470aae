package domain

// AgentRequest is the input to the agent capability for one run: the prompt,
// the verified caller identity, the tenant-scoped credential, and the
// tenant's configuration. The answer id doubles as the agent session id so a
// conversation keeps its context across turns.
type AgentRequest struct {
	AnswerID    string
	Prompt      string
	Identity    IdentityClaims
	Credentials ScopedCredentials
	Config      TenantConfig
}
