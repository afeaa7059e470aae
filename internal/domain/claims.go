package domain

// IdentityClaims are the authenticated facts about a caller, produced by the
// authentication boundary and passed by value into the core. They are never
// derived from request payloads.
type IdentityClaims struct {
	SubjectID string `json:"sub"`
	TenantID  string `json:"custom:tenantId"`
}
