package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aixgo-dev/chatbatch/pkg/config"
	"github.com/aixgo-dev/chatbatch/pkg/observability"
)

// Version information (set via ldflags)
var Version = "dev"

// app carries the state shared by every command.
type app struct {
	configPath  string
	logLevel    string
	metricsPort int

	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Server
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "chatbatch: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "chatbatch",
		Short:         "Run resumable batches of chat completions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", os.Getenv("CHATBATCH_CONFIG"), "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.IntVar(&a.metricsPort, "metrics-port", 0, "serve /metrics and /health on this port")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newProcessCmd(a))
	root.AddCommand(newShowCmd(a))
	root.AddCommand(newModelsCmd(a))
	root.AddCommand(newCompleteCmd(a))
	root.AddCommand(newChatCmd(a))

	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.metricsPort != 0 {
		cfg.MetricsPort = a.metricsPort
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing = observability.TracingConfigFromEnv()
	}
	a.cfg = cfg

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.logger = logger

	observability.InitMetrics()
	if err := observability.InitTracing(cfg.Tracing); err != nil {
		return err
	}

	if cfg.MetricsPort != 0 {
		a.metrics = observability.NewServer(cfg.MetricsPort)
		go func() {
			a.logger.Info("Starting metrics server", zap.Int("port", cfg.MetricsPort))
			if err := a.metrics.Start(); err != nil {
				a.logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}
	return nil
}

func (a *app) teardown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics server shutdown error", zap.Error(err))
		}
	}
	if err := observability.ShutdownTracing(ctx); err != nil {
		a.logger.Warn("Tracing shutdown error", zap.Error(err))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}
