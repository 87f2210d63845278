package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opsmono/agentproxy/internal/artifacts"
	"github.com/opsmono/agentproxy/internal/config"
	"github.com/opsmono/agentproxy/internal/eventbus"
	"github.com/opsmono/agentproxy/internal/handlers"
	"github.com/opsmono/agentproxy/internal/metrics"
	"github.com/opsmono/agentproxy/internal/ollama"
	"github.com/opsmono/agentproxy/internal/server"
	"github.com/opsmono/agentproxy/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serveAgent string
	servePort  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an agent",
	Long: `Run an agent until SIGINT or SIGTERM.

Configuration comes from the environment, an optional .env file
(AGENT_ENV_FILE or ./.env) and an optional YAML profile
(AGENT_PROFILE_FILE). Flags override the matching variables.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAgent, "agent", "", "agent profile to run (overrides AGENT_NAME)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveAgent != "" {
		os.Setenv("AGENT_NAME", serveAgent)
	}
	if servePort != "" {
		os.Setenv("PORT", servePort)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("agent starting...",
		zap.String("agent", cfg.Agent.Name),
		zap.String("version", handlers.Version),
		zap.String("environment", cfg.Environment),
		zap.String("model_server", cfg.OllamaBaseURL),
		zap.String("default_model", cfg.Agent.DefaultModel),
		zap.Strings("tasks", cfg.Agent.Tasks),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, "agentproxy", cfg.Agent.Name, cfg.OTLPEndpoint)
	if err != nil {
		// collector may be down, tracing is optional
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := telemetry.Flush(shutdownTracer, 5*time.Second); err != nil {
				logger.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	var publisher eventbus.Publisher = eventbus.Nop{}
	if cfg.NATSURL != "" {
		nc, err := eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS, events disabled", zap.Error(err))
		} else {
			defer nc.Close()
			publisher = nc
			logger.Info("connected to NATS")
		}
	}
	events := eventbus.NewEmitter(cfg.Agent.Name, publisher, logger)

	store := artifacts.NewStore(cfg.AgentContextDir(), events, logger)
	if err := store.Init(); err != nil {
		return err
	}

	client := ollama.NewClient(ollama.Options{
		BaseURL:      cfg.OllamaBaseURL,
		RetryCount:   cfg.RetryCount,
		RetryWait:    cfg.RetryWait,
		RetryMaxWait: cfg.RetryMaxWait,
		ProbeTimeout: cfg.HealthTimeout,
		ListTimeout:  cfg.ListTimeout,
	}, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.New(cfg, server.Deps{
		Logger:  logger,
		Model:   client,
		Store:   store,
		Events:  events,
		Metrics: metrics.New(cfg.Agent.Name),
	})
	return srv.Run(ctx)
}
