package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/queue-worker/internal/api/dto"
	"github.com/cuongbtq/queue-worker/internal/queue"
	"github.com/cuongbtq/queue-worker/internal/worker/domain"
	"github.com/gin-gonic/gin"
)

// defaultKickBound is used when POST .../kick has no bound parameter
const defaultKickBound = 1

// ListQueues handles GET /api/v1/queues
func (h *QueueHandler) ListQueues(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ListQueuesResponse{Queues: h.service.Queues()})
}

// EnqueueJob handles POST /api/v1/queues/:queue/jobs
// Encodes the payload and puts it on the queue
func (h *QueueHandler) EnqueueJob(c *gin.Context) {
	queueName := c.Param("queue")

	var req dto.EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body",
			slog.String("queue", queueName),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	opts := domain.EnqueueOptions{
		Delay:    time.Duration(req.DelaySeconds) * time.Second,
		Priority: domain.DefaultPriority,
	}
	if req.Priority != nil {
		opts.Priority = *req.Priority
	}

	jobID, err := h.service.Enqueue(c.Request.Context(), queueName, req.Payload, opts)
	if err != nil {
		h.writeError(c, queueName, "Failed to enqueue job", err)
		return
	}

	c.JSON(http.StatusCreated, dto.EnqueueJobResponse{
		JobID: jobID,
		Queue: queueName,
	})
}

// GetQueueStats handles GET /api/v1/queues/:queue/stats
func (h *QueueHandler) GetQueueStats(c *gin.Context) {
	queueName := c.Param("queue")

	stats, err := h.service.Stats(c.Request.Context(), queueName)
	if err != nil {
		h.writeError(c, queueName, "Failed to get queue stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// KickJobs handles POST /api/v1/queues/:queue/kick?bound=n
// Moves up to n buried jobs back to ready
func (h *QueueHandler) KickJobs(c *gin.Context) {
	queueName := c.Param("queue")

	var req dto.KickRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "bound must be a positive integer"})
		return
	}
	if req.Bound == 0 {
		req.Bound = defaultKickBound
	}

	kicked, err := h.service.Kick(c.Request.Context(), queueName, req.Bound)
	if err != nil {
		h.writeError(c, queueName, "Failed to kick jobs", err)
		return
	}

	c.JSON(http.StatusOK, dto.KickResponse{
		Queue:  queueName,
		Kicked: kicked,
	})
}

// writeError maps service errors to HTTP statuses
func (h *QueueHandler) writeError(c *gin.Context, queueName, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrQueueNotBound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Unknown queue: " + queueName})
	case errors.Is(err, queue.ErrInvalidBound), errors.Is(err, queue.ErrInvalidDelay):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error(msg,
			slog.String("queue", queueName),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: msg})
	}
}
