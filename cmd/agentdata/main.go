// The agent data task serves the agent's tool calls for tenant policies and
// order lookups, signing every read with the scoped credential carried in the
// invocation's session attributes.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/caarlos0/env/v11"

	"tenant-assistant/handler"
	"tenant-assistant/internal/domain"
	"tenant-assistant/internal/repository"
)

type agentDataConfig struct {
	TenantConfigTable string `env:"TENANT_CONFIG_TABLE,required"`
}

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var cfg agentDataConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Error("failed to parse configuration", "err", err)
		os.Exit(1)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	tenantData := func(_ context.Context, scope domain.ScopedCredentials) (handler.TenantData, error) {
		return repository.NewTenantData(repository.ScopedDynamoDB(awsCfg, scope), cfg.TenantConfigTable, scope)
	}

	h, err := handler.NewAgentData(tenantData, logger)
	if err != nil {
		logger.Error("failed to create agent data handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
