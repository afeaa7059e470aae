package repository

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"tenant-assistant/internal/domain"
)

// ScopedDynamoDB builds a DynamoDB client that signs every request with the
// given scoped credential instead of the process identity. Requests outside
// the credential's tenant tag are rejected by the table's access policy.
func ScopedDynamoDB(base aws.Config, scope domain.ScopedCredentials) *dynamodb.Client {
	cfg := base.Copy()
	cfg.Credentials = credentials.NewStaticCredentialsProvider(
		scope.AccessKeyID,
		scope.SecretAccessKey,
		scope.SessionToken,
	)
	return dynamodb.NewFromConfig(cfg)
}
