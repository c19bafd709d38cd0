package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cuongbtq/queue-worker/internal/metrics"
	"github.com/cuongbtq/queue-worker/internal/worker"
	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

var (
	// ErrInvalidBound is returned when a kick bound is not positive
	ErrInvalidBound = errors.New("kick bound must be greater than 0")

	// ErrInvalidDelay is returned when an enqueue delay is negative
	ErrInvalidDelay = errors.New("delay must not be negative")
)

// Producer is the write and inspection side of a broker
type Producer interface {
	Put(ctx context.Context, queue string, body []byte, opts domain.EnqueueOptions) (string, error)
	QueueStats(ctx context.Context, queue string) (*domain.QueueStats, error)
	Kick(ctx context.Context, queue string, bound int) (int, error)
}

// Service enqueues and inspects jobs on the configured queues
type Service struct {
	producer Producer
	codec    worker.Codec
	queues   map[string]struct{}
	logger   *slog.Logger
}

// NewService creates a service that only accepts the given queue names
func NewService(producer Producer, queues []string, logger *slog.Logger) *Service {
	known := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		known[q] = struct{}{}
	}

	return &Service{
		producer: producer,
		codec:    worker.JSONCodec{},
		queues:   known,
		logger:   logger,
	}
}

// Queues returns the accepted queue names in sorted order
func (s *Service) Queues() []string {
	names := make([]string, 0, len(s.queues))
	for q := range s.queues {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}

// Enqueue encodes payload and stores it on queue, returning the broker's job ID
func (s *Service) Enqueue(ctx context.Context, queue string, payload domain.Payload, opts domain.EnqueueOptions) (string, error) {
	if err := s.checkQueue(queue); err != nil {
		return "", err
	}

	if opts.Delay < 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidDelay, opts.Delay)
	}

	body, err := s.codec.Encode(payload)
	if err != nil {
		return "", err
	}

	id, err := s.producer.Put(ctx, queue, body, opts)
	if err != nil {
		s.logger.Error("Failed to enqueue job",
			slog.String("queue", queue),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	metrics.EnqueuedTotal.WithLabelValues(queue).Inc()

	s.logger.Info("Job enqueued",
		slog.String("job_id", id),
		slog.String("queue", queue),
		slog.Duration("delay", opts.Delay),
		slog.Int("priority", int(opts.Priority)),
	)

	return id, nil
}

// Stats returns the job counts of queue
func (s *Service) Stats(ctx context.Context, queue string) (*domain.QueueStats, error) {
	if err := s.checkQueue(queue); err != nil {
		return nil, err
	}

	stats, err := s.producer.QueueStats(ctx, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	stats.Queue = queue
	return stats, nil
}

// Kick moves up to bound buried jobs on queue back to ready
func (s *Service) Kick(ctx context.Context, queue string, bound int) (int, error) {
	if err := s.checkQueue(queue); err != nil {
		return 0, err
	}
	if bound <= 0 {
		return 0, ErrInvalidBound
	}

	kicked, err := s.producer.Kick(ctx, queue, bound)
	if err != nil {
		return 0, fmt.Errorf("failed to kick jobs: %w", err)
	}

	s.logger.Info("Jobs kicked",
		slog.String("queue", queue),
		slog.Int("bound", bound),
		slog.Int("kicked", kicked),
	)

	return kicked, nil
}

func (s *Service) checkQueue(queue string) error {
	if _, ok := s.queues[queue]; !ok {
		return &domain.ConfigurationError{Queue: queue, Err: domain.ErrQueueNotBound}
	}
	return nil
}
