// Package handlers provides the job handlers a worker can bind to a queue
// from configuration.
package handlers

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/queue-worker/internal/worker"
	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

// Names of the handlers registered by RegisterBuiltins
const (
	NoopName = "noop"
	LogName  = "log"
)

// Noop accepts every job
func Noop() worker.Handler {
	return worker.HandlerFunc(func(context.Context, domain.Payload) (int, error) {
		return domain.OutcomeSuccess, nil
	})
}

// Log writes the payload to logger and accepts the job
func Log(logger *slog.Logger) worker.Handler {
	return worker.HandlerFunc(func(ctx context.Context, payload domain.Payload) (int, error) {
		logger.InfoContext(ctx, "Job payload",
			slog.Any("payload", map[string]any(payload)),
		)
		return domain.OutcomeSuccess, nil
	})
}

// RegisterBuiltins registers the named handlers every worker ships with
func RegisterBuiltins(r *worker.Registry, logger *slog.Logger) error {
	if err := r.Register(NoopName, Noop()); err != nil {
		return err
	}
	return r.Register(LogName, Log(logger))
}
