package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"tenant-assistant/internal/domain"
)

// ErrCredentialScopeMismatch reports an attempt to read a partition the
// caller's scoped credential is not tagged for. The data store enforces the
// same attribute match through its access policy; this check fails fast
// before a request is even made.
var ErrCredentialScopeMismatch = errors.New("repository: credential is not scoped to the requested tenant")

// ErrTenantNotFound reports a tenant id with no configuration row.
var ErrTenantNotFound = errors.New("repository: tenant configuration not found")

// TenantDataClient reads a tenant's configuration and private order data
// using a credential scoped to exactly that tenant.
type TenantDataClient struct {
	api         dynamodbAPI
	configTable string
	scope       domain.ScopedCredentials
}

// NewTenantData creates a TenantDataClient bound to one scoped credential.
// The api must be a DynamoDB client built from that same credential.
func NewTenantData(api dynamodbAPI, configTable string, scope domain.ScopedCredentials) (*TenantDataClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(configTable) == "" {
		return nil, errors.New("repository: config table name must not be empty")
	}
	if scope.TenantID == "" {
		return nil, errors.New("repository: credential tenant tag must not be empty")
	}
	return &TenantDataClient{api: api, configTable: configTable, scope: scope}, nil
}

// GetConfig returns the configuration row for the given tenant. The tenant id
// must match the credential's tag.
func (c *TenantDataClient) GetConfig(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	if !c.scope.ScopedTo(tenantID) {
		return domain.TenantConfig{}, ErrCredentialScopeMismatch
	}

	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.configTable),
		KeyConditionExpression: aws.String("tenantId = :tid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tid": &types.AttributeValueMemberS{Value: tenantID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("repository: GetConfig query: %w", err)
	}
	if len(out.Items) == 0 {
		return domain.TenantConfig{}, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	cfg, err := itemToTenantConfig(out.Items[0])
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("repository: GetConfig decode: %w", err)
	}
	return cfg, nil
}

// GetOrders queries the user's orders in the tenant's private orders table.
// The table handle comes from the tenant configuration, so the credential
// scope was already checked when the configuration was read; it is re-checked
// here because this method can be reached with a caller-supplied config.
func (c *TenantDataClient) GetOrders(ctx context.Context, cfg domain.TenantConfig, userID string) ([]domain.Order, error) {
	if !c.scope.ScopedTo(cfg.TenantID) {
		return nil, ErrCredentialScopeMismatch
	}
	if strings.TrimSpace(cfg.OrdersTableName) == "" {
		return nil, errors.New("repository: GetOrders: orders table name must not be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("repository: GetOrders: user id must not be empty")
	}

	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(cfg.OrdersTableName),
		KeyConditionExpression: aws.String("userId = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetOrders query: %w", err)
	}

	orders := make([]domain.Order, 0, len(out.Items))
	for _, item := range out.Items {
		order, err := itemToOrder(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetOrders decode: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func itemToTenantConfig(item map[string]types.AttributeValue) (domain.TenantConfig, error) {
	tenantID, err := strAttr(item, "tenantId")
	if err != nil {
		return domain.TenantConfig{}, err
	}
	ordersTable, err := strAttr(item, "ordersTableName")
	if err != nil {
		return domain.TenantConfig{}, err
	}
	days, err := policyReturnDays(item)
	if err != nil {
		return domain.TenantConfig{}, err
	}
	return domain.TenantConfig{
		TenantID:        tenantID,
		OrdersTableName: ordersTable,
		Policies: domain.PolicySettings{
			Returns: domain.ReturnsPolicy{Days: days},
		},
	}, nil
}

// policyReturnDays walks the nested policies.returns.days map attribute.
func policyReturnDays(item map[string]types.AttributeValue) (int, error) {
	policies, ok := item["policies"].(*types.AttributeValueMemberM)
	if !ok {
		return 0, errors.New("attribute \"policies\" is not a map")
	}
	returns, ok := policies.Value["returns"].(*types.AttributeValueMemberM)
	if !ok {
		return 0, errors.New("attribute \"policies.returns\" is not a map")
	}
	days, ok := returns.Value["days"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("attribute \"policies.returns.days\" is not a number")
	}
	parsed, err := strconv.Atoi(days.Value)
	if err != nil {
		return 0, fmt.Errorf("parse policies.returns.days: %w", err)
	}
	return parsed, nil
}

func itemToOrder(item map[string]types.AttributeValue) (domain.Order, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.Order{}, err
	}
	orderID, err := strAttr(item, "orderId")
	if err != nil {
		return domain.Order{}, err
	}
	name, _ := strAttr(item, "item")    // allow empty
	status, _ := strAttr(item, "status") // allow empty
	return domain.Order{UserID: userID, OrderID: orderID, Item: name, Status: status}, nil
}
