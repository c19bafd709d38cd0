package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/queue-worker/internal/broker"
	"github.com/cuongbtq/queue-worker/internal/config"
	"github.com/cuongbtq/queue-worker/internal/worker"
	"github.com/cuongbtq/queue-worker/internal/worker/handlers"
	"github.com/cuongbtq/queue-worker/shared/logger"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}

	opts, err := parseArgs(args, defaultConfigPath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	maxJobs := cfg.Worker.MaxJobs
	if opts.MaxJobs >= 0 {
		maxJobs = opts.MaxJobs
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue", opts.Queue),
		slog.Int("max_jobs", maxJobs),
	)

	// SIGINT/SIGTERM stop the run before the next reservation
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := worker.NewRegistry()
	if err := handlers.RegisterBuiltins(registry, appLogger.Logger); err != nil {
		return err
	}
	if err := handlers.BindAll(registry, cfg.Queues, appLogger.Logger); err != nil {
		return err
	}

	backend, err := broker.Open(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	defer backend.Close()

	if cfg.Worker.MetricsAddr != "" {
		srv := startMetricsServer(cfg.Worker.MetricsAddr, appLogger.Logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	w := worker.NewWorker(&worker.Config{
		Logger:               appLogger.Logger,
		Broker:               backend,
		Registry:             registry,
		ReleaseDelay:         cfg.Worker.ReleaseDelay,
		BuryAfterReserves:    cfg.Worker.BuryAfterReserves,
		SkipReleaseAfterBury: cfg.Worker.SkipReleaseAfterBury,
	})

	summary, err := w.Run(ctx, opts.Queue, maxJobs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			appLogger.Info("Worker interrupted, shutting down",
				slog.Int("attempts", summary.Attempts),
			)
			return nil
		}
		return fmt.Errorf("queue run failed: %w", err)
	}

	appLogger.Info("Worker service finished",
		slog.String("queue", summary.Queue),
		slog.Int("attempts", summary.Attempts),
		slog.Bool("drained", summary.Drained),
	)
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// startMetricsServer exposes /metrics on addr in the background
func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed",
				slog.Any("error", err),
			)
		}
	}()

	logger.Info("Metrics server listening",
		slog.String("address", addr),
	)
	return srv
}
