// The worker consumes relayed prompt events and drives the agent run:
// tenant-scoped credential acquisition, tenant configuration lookup, agent
// invocation and chunk publication back through the gateway.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsbedrock "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	awssts "github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/caarlos0/env/v11"

	"tenant-assistant/handler"
	"tenant-assistant/internal/domain"
	"tenant-assistant/internal/integrations/answerapi"
	"tenant-assistant/internal/integrations/bedrock"
	"tenant-assistant/internal/integrations/paramstore"
	"tenant-assistant/internal/integrations/sts"
	"tenant-assistant/internal/repository"
	"tenant-assistant/internal/usecase"
)

type workerConfig struct {
	AnswersTable      string        `env:"ANSWERS_TABLE,required"`
	TenantConfigTable string        `env:"TENANT_CONFIG_TABLE,required"`
	TenantDataRoleARN string        `env:"TENANT_DATA_ROLE_ARN,required"`
	AgentID           string        `env:"AGENT_ID" envDefault:"AGENT_ID"`
	AgentAliasID      string        `env:"AGENT_ALIAS_ID" envDefault:"AGENT_ALIAS_ID"`
	GatewayBaseURL    string        `env:"GATEWAY_BASE_URL,required"`
	ParamPrefix       string        `env:"PARAM_PREFIX,required"`
	AssumeTimeout     time.Duration `env:"ASSUME_TIMEOUT" envDefault:"15s"`
}

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var cfg workerConfig
	if err := env.Parse(&cfg); err != nil {
		logger.Error("failed to parse configuration", "err", err)
		os.Exit(1)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		logger.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	runs, err := repository.NewAnswers(awsdynamodb.NewFromConfig(awsCfg), cfg.AnswersTable)
	if err != nil {
		logger.Error("failed to create answers client", "err", err)
		os.Exit(1)
	}
	broker, err := sts.New(awssts.NewFromConfig(awsCfg), cfg.TenantDataRoleARN)
	if err != nil {
		logger.Error("failed to create credential broker", "err", err)
		os.Exit(1)
	}
	agent, err := bedrock.New(awsbedrock.NewFromConfig(awsCfg), cfg.AgentID, cfg.AgentAliasID)
	if err != nil {
		logger.Error("failed to create agent client", "err", err)
		os.Exit(1)
	}
	publisher, err := answerapi.NewClient(ssmClient, cfg.ParamPrefix, cfg.GatewayBaseURL)
	if err != nil {
		logger.Error("failed to create answer publisher", "err", err)
		os.Exit(1)
	}

	// Each run reads tenant data with its own scoped credential, never the
	// worker's role.
	directory := func(scope domain.ScopedCredentials) (usecase.TenantDirectory, error) {
		return repository.NewTenantData(repository.ScopedDynamoDB(awsCfg, scope), cfg.TenantConfigTable, scope)
	}

	orchestrator, err := usecase.NewOrchestrator(runs, broker, directory, agent, publisher, cfg.AssumeTimeout, logger)
	if err != nil {
		logger.Error("failed to create orchestrator", "err", err)
		os.Exit(1)
	}
	w, err := handler.NewWorker(orchestrator, logger)
	if err != nil {
		logger.Error("failed to create worker handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(w.Handle)
}
