// The gateway serves the user-facing assistant surface: prompt submission,
// answer reads and live answer streams, plus the internal chunk-publish
// endpoint used by the worker.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/caarlos0/env/v11"
	"golang.org/x/sync/errgroup"

	"tenant-assistant/internal/auth"
	"tenant-assistant/internal/fanout"
	"tenant-assistant/internal/gateway"
	"tenant-assistant/internal/integrations/eventbridge"
	"tenant-assistant/internal/integrations/paramstore"
	"tenant-assistant/internal/repository"
	"tenant-assistant/internal/usecase"
)

type gatewayConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	AnswersTable    string        `env:"ANSWERS_TABLE,required"`
	EventBusName    string        `env:"EVENT_BUS_NAME,required"`
	EventSource     string        `env:"EVENT_SOURCE" envDefault:"assistant.gateway"`
	ParamPrefix     string        `env:"PARAM_PREFIX,required"`
	MaxPromptLength int           `env:"MAX_PROMPT_LENGTH" envDefault:"4000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("gateway exited", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg gatewayConfig
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	answers, err := repository.NewAnswers(awsdynamodb.NewFromConfig(awsCfg), cfg.AnswersTable)
	if err != nil {
		return err
	}
	relay, err := eventbridge.New(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, cfg.EventSource)
	if err != nil {
		return err
	}

	ingress, err := usecase.NewIngressService(relay, answers, fanout.NewRegistry(), cfg.MaxPromptLength)
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifierFromEnv()
	if err != nil {
		return err
	}
	server, err := gateway.NewServer(ingress, verifier, ssmClient, cfg.ParamPrefix, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gateway listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
