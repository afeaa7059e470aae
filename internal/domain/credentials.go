package domain

import "time"

// ScopedCredentials is a short-lived credential tagged to exactly one tenant.
// The tag is part of the value so downstream data access can refuse a
// credential whose scope does not match the partition it is asked to read;
// the data store enforces the same attribute match independently.
type ScopedCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	TenantID        string
	Expires         time.Time
}

// ScopedTo reports whether the credential is tagged for the given tenant.
func (c ScopedCredentials) ScopedTo(tenantID string) bool {
	return tenantID != "" && c.TenantID == tenantID
}
