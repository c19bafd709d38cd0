package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
	"github.com/google/uuid"
)

// Config holds worker configuration
type Config struct {
	Logger   *slog.Logger
	Broker   Broker
	Registry *Registry
	Codec    Codec
	WorkerID string

	// ReleaseDelay is applied to every job that is released for retry
	ReleaseDelay time.Duration

	// BuryAfterReserves buries a failing job once its reserve count exceeds it
	BuryAfterReserves int

	// SkipReleaseAfterBury suppresses the release call that otherwise follows a bury
	SkipReleaseAfterBury bool
}

// Worker reserves jobs from one queue at a time and settles each of them
// before reserving the next
type Worker struct {
	logger               *slog.Logger
	broker               Broker
	registry             *Registry
	codec                Codec
	workerID             string
	releaseDelay         time.Duration
	buryAfterReserves    int
	skipReleaseAfterBury bool
}

// Summary counts what happened during a run
type Summary struct {
	Queue     string
	Attempts  int
	Deleted   int
	Released  int
	Buried    int
	Faults    int
	AckErrors int
	// Drained is set when the run stopped because the queue had no ready jobs
	Drained bool
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	codec := cfg.Codec
	if codec == nil {
		codec = JSONCodec{}
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = uuid.New().String()
	}

	releaseDelay := cfg.ReleaseDelay
	if releaseDelay <= 0 {
		releaseDelay = domain.DefaultReleaseDelay
	}

	buryAfter := cfg.BuryAfterReserves
	if buryAfter <= 0 {
		buryAfter = domain.DefaultBuryAfterReserves
	}

	return &Worker{
		logger:               logger.With(slog.String("worker_id", workerID)),
		broker:               cfg.Broker,
		registry:             cfg.Registry,
		codec:                codec,
		workerID:             workerID,
		releaseDelay:         releaseDelay,
		buryAfterReserves:    buryAfter,
		skipReleaseAfterBury: cfg.SkipReleaseAfterBury,
	}
}

// ID returns the worker identifier used in logs
func (w *Worker) ID() string {
	return w.workerID
}

// Run processes up to maxJobs+1 jobs from queue. It returns early, without
// error, as soon as the queue has no ready jobs left.
//
// Configuration and reservation errors abort the run. Decode errors, handler
// faults and failed acknowledgments are settled inside the loop and only
// show up in the returned Summary and the logs.
func (w *Worker) Run(ctx context.Context, queue string, maxJobs int) (*Summary, error) {
	summary := &Summary{Queue: queue}

	if maxJobs < 0 {
		return summary, &domain.ConfigurationError{
			Queue:  queue,
			Reason: fmt.Sprintf("max jobs must not be negative, got %d", maxJobs),
		}
	}

	handler, err := w.registry.Resolve(queue)
	if err != nil {
		w.logger.Error("No handler bound to queue",
			slog.String("queue", queue),
			slog.Any("error", err),
		)
		return summary, err
	}

	if err := w.broker.Watch(ctx, queue); err != nil {
		return summary, &domain.ReservationError{Queue: queue, Err: fmt.Errorf("failed to watch queue: %w", err)}
	}

	w.logger.Info("Starting queue run",
		slog.String("queue", queue),
		slog.Int("max_jobs", maxJobs),
	)

	for i := 0; i <= maxJobs; i++ {
		if err := ctx.Err(); err != nil {
			w.logger.Info("Queue run canceled",
				slog.String("queue", queue),
				slog.Int("attempts", summary.Attempts),
			)
			return summary, err
		}

		w.logger.Debug("Waiting for job",
			slog.Int("iteration", i),
			slog.String("queue", queue),
		)

		drained, err := w.probe(ctx, queue)
		if err != nil {
			return summary, err
		}
		if drained {
			summary.Drained = true
			w.logger.Debug("No ready jobs, stopping run",
				slog.String("queue", queue),
			)
			break
		}

		job, err := w.broker.Reserve(ctx)
		if err != nil {
			w.logger.Error("Failed to reserve job",
				slog.String("queue", queue),
				slog.Any("error", err),
			)
			return summary, &domain.ReservationError{Queue: queue, Err: err}
		}
		if job.Queue == "" {
			job.Queue = queue
		}
		summary.Attempts++

		w.processJob(ctx, handler, job, summary)
	}

	w.logger.Info("Queue run finished",
		slog.String("queue", queue),
		slog.Int("attempts", summary.Attempts),
		slog.Int("deleted", summary.Deleted),
		slog.Int("released", summary.Released),
		slog.Int("buried", summary.Buried),
		slog.Int("faults", summary.Faults),
		slog.Int("ack_errors", summary.AckErrors),
		slog.Bool("drained", summary.Drained),
	)

	return summary, nil
}

// probe reports whether the queue is drained. A broker failure here is fatal.
func (w *Worker) probe(ctx context.Context, queue string) (bool, error) {
	ready, err := w.broker.ReadyCount(ctx, queue)
	if err != nil {
		w.logger.Error("Failed to read queue stats",
			slog.String("queue", queue),
			slog.Any("error", err),
		)
		return false, &domain.ReservationError{Queue: queue, Err: fmt.Errorf("failed to read ready count: %w", err)}
	}
	return ready < 1, nil
}
