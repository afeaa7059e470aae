package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tenant-assistant/internal/domain"
)

const (
	skRunState = "STATE"
	skLatest   = "LATEST"

	// Answer records are conversational state, not a system of record.
	answerTTL = 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by the clients in
// this package. Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// AnswersClient wraps the DynamoDB table holding per-answer run state and the
// latest published chunk. The gateway writes LATEST records; the orchestrator
// owns STATE records.
type AnswersClient struct {
	api       dynamodbAPI
	tableName string
}

// NewAnswers creates an AnswersClient.
func NewAnswers(api dynamodbAPI, tableName string) (*AnswersClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &AnswersClient{api: api, tableName: tableName}, nil
}

// answerPK returns the DynamoDB partition key for an answer.
func answerPK(answerID string) string {
	return "ANSWER#" + answerID
}

func ttlValue() int64 {
	return time.Now().Add(answerTTL).Unix()
}

// ClaimRun records the RECEIVED state for an answer id, succeeding at most
// once. A second claim for the same answer id reports
// domain.ErrDuplicateDelivery; this conditional write is the relay's
// at-least-once dedupe.
func (c *AnswersClient) ClaimRun(ctx context.Context, answerID, tenantID string) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: answerPK(answerID)},
			"SK":        &types.AttributeValueMemberS{Value: skRunState},
			"status":    &types.AttributeValueMemberS{Value: domain.RunReceived},
			"tenantId":  &types.AttributeValueMemberS{Value: tenantID},
			"updatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue())},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("repository: ClaimRun: %w", domain.ErrDuplicateDelivery)
		}
		return fmt.Errorf("repository: ClaimRun: %w", err)
	}
	return nil
}

// SetRunStatus overwrites the run state for an answer id.
func (c *AnswersClient) SetRunStatus(ctx context.Context, answerID, status string) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: answerPK(answerID)},
			"SK":        &types.AttributeValueMemberS{Value: skRunState},
			"status":    &types.AttributeValueMemberS{Value: status},
			"updatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			"ttl":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue())},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SetRunStatus: %w", err)
	}
	return nil
}

// PutLatestChunk replaces the most recent published chunk for an answer id,
// which serves point reads and late-subscriber catch-up.
func (c *AnswersClient) PutLatestChunk(ctx context.Context, chunk domain.AnswerChunk) error {
	if chunk.AnswerID == "" {
		return errors.New("repository: PutLatestChunk: answer id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":          &types.AttributeValueMemberS{Value: answerPK(chunk.AnswerID)},
			"SK":          &types.AttributeValueMemberS{Value: skLatest},
			"answerChunk": &types.AttributeValueMemberS{Value: chunk.Text},
			"status":      &types.AttributeValueMemberS{Value: chunk.Status},
			"isError":     &types.AttributeValueMemberBOOL{Value: chunk.IsError},
			"ttl":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue())},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: PutLatestChunk: %w", err)
	}
	return nil
}

// GetLatestChunk returns the most recent published chunk for an answer id.
// The second return value is false when nothing was published yet.
func (c *AnswersClient) GetLatestChunk(ctx context.Context, answerID string) (domain.AnswerChunk, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: answerPK(answerID)},
			"SK": &types.AttributeValueMemberS{Value: skLatest},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.AnswerChunk{}, false, fmt.Errorf("repository: GetLatestChunk: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.AnswerChunk{}, false, nil
	}

	text, err := strAttr(out.Item, "answerChunk")
	if err != nil {
		return domain.AnswerChunk{}, false, fmt.Errorf("repository: GetLatestChunk: %w", err)
	}
	status, err := strAttr(out.Item, "status")
	if err != nil {
		return domain.AnswerChunk{}, false, fmt.Errorf("repository: GetLatestChunk: %w", err)
	}
	return domain.AnswerChunk{
		AnswerID: answerID,
		Text:     text,
		Status:   status,
		IsError:  boolAttr(out.Item, "isError"),
	}, true, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	v, ok := item[key]
	if !ok {
		return false
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false
	}
	return b.Value
}
