package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

// QueueService is what the HTTP handlers need from the queue layer
type QueueService interface {
	Queues() []string
	Enqueue(ctx context.Context, queue string, payload domain.Payload, opts domain.EnqueueOptions) (string, error)
	Stats(ctx context.Context, queue string) (*domain.QueueStats, error)
	Kick(ctx context.Context, queue string, bound int) (int, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Service QueueService
}

// QueueHandler handles queue-related HTTP requests
type QueueHandler struct {
	logger  *slog.Logger
	service QueueService
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(deps *Dependencies) *QueueHandler {
	return &QueueHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}
