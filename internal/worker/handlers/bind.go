package handlers

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/cuongbtq/queue-worker/internal/config"
	"github.com/cuongbtq/queue-worker/internal/worker"
	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

// Worker kinds built from per-queue configuration
const (
	CommandKind = "command"
	HTTPKind    = "http"
)

// Ref builds the handler reference for a configured queue. The command and
// http kinds construct a handler directly; anything else names a handler
// registered with the registry.
func Ref(queue string, cfg config.QueueConfig, logger *slog.Logger) (worker.HandlerRef, error) {
	switch cfg.Worker {
	case CommandKind:
		if cfg.Command == "" {
			return worker.HandlerRef{}, &domain.ConfigurationError{Queue: queue, Reason: "command worker requires a command"}
		}
		return worker.Direct(NewCommand(cfg.Command, cfg.Timeout, logger)), nil

	case HTTPKind:
		if cfg.URL == "" {
			return worker.HandlerRef{}, &domain.ConfigurationError{Queue: queue, Reason: "http worker requires a url"}
		}
		return worker.Direct(NewHTTP(cfg.Method, cfg.URL, cfg.Timeout, logger)), nil

	case "":
		return worker.HandlerRef{}, &domain.ConfigurationError{Queue: queue, Reason: "worker is required"}

	default:
		return worker.Named(cfg.Worker), nil
	}
}

// BindAll binds every configured queue in a stable order
func BindAll(r *worker.Registry, queues map[string]config.QueueConfig, logger *slog.Logger) error {
	names := make([]string, 0, len(queues))
	for name := range queues {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref, err := Ref(name, queues[name], logger)
		if err != nil {
			return err
		}
		if err := r.Bind(name, ref); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", name, err)
		}
		logger.Debug("Queue bound",
			slog.String("queue", name),
			slog.String("handler", ref.String()),
		)
	}
	return nil
}
