// Package sts implements the credential broker: it exchanges the worker's
// own identity for a short-lived credential scoped to exactly one tenant.
package sts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssts "github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"

	"tenant-assistant/internal/domain"
)

const (
	tenantTagKey    = "TenantId"
	sessionName     = "agent-orchestrator"
	sessionDuration = 15 * time.Minute
)

// stsAPI is the minimal AWS STS interface required by Broker.
// *sts.Client from aws-sdk-go-v2 satisfies this interface.
type stsAPI interface {
	AssumeRole(ctx context.Context, in *awssts.AssumeRoleInput, optFns ...func(*awssts.Options)) (*awssts.AssumeRoleOutput, error)
}

// Broker assumes the tenant-data role with a tenant session tag. The role's
// access policy restricts reads to partitions whose key equals the tag, so
// the returned credential cannot reach another tenant's rows even if misused.
type Broker struct {
	api     stsAPI
	roleARN string
}

// New creates a Broker for the given tenant-data role.
func New(api stsAPI, roleARN string) (*Broker, error) {
	if api == nil {
		return nil, errors.New("sts: api must not be nil")
	}
	if strings.TrimSpace(roleARN) == "" {
		return nil, errors.New("sts: role arn must not be empty")
	}
	return &Broker{api: api, roleARN: roleARN}, nil
}

// Assume returns a credential tagged for the given tenant. The credential is
// valid for one orchestrator run and must never be cached across answer ids.
func (b *Broker) Assume(ctx context.Context, tenantID string) (domain.ScopedCredentials, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.ScopedCredentials{}, errors.New("sts: tenant id must not be empty")
	}

	out, err := b.api.AssumeRole(ctx, &awssts.AssumeRoleInput{
		RoleArn:         aws.String(b.roleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(int32(sessionDuration.Seconds())),
		Tags: []types.Tag{
			{Key: aws.String(tenantTagKey), Value: aws.String(tenantID)},
		},
	})
	if err != nil {
		return domain.ScopedCredentials{}, fmt.Errorf("sts: assume role for tenant %q: %w", tenantID, err)
	}
	if out == nil || out.Credentials == nil ||
		out.Credentials.AccessKeyId == nil || out.Credentials.SecretAccessKey == nil || out.Credentials.SessionToken == nil {
		return domain.ScopedCredentials{}, errors.New("sts: assume role returned incomplete credentials")
	}

	creds := domain.ScopedCredentials{
		AccessKeyID:     *out.Credentials.AccessKeyId,
		SecretAccessKey: *out.Credentials.SecretAccessKey,
		SessionToken:    *out.Credentials.SessionToken,
		TenantID:        tenantID,
	}
	if out.Credentials.Expiration != nil {
		creds.Expires = *out.Credentials.Expiration
	}
	return creds, nil
}
