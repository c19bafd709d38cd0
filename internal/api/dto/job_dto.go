package dto

import "github.com/cuongbtq/queue-worker/internal/worker/domain"

type EnqueueJobRequest struct {
	Payload      domain.Payload `json:"payload" binding:"required"`
	DelaySeconds int            `json:"delay_seconds" binding:"min=0"`
	// Priority follows beanstalkd: lower is more urgent. Defaults to 1024.
	Priority *uint32 `json:"priority"`
}

type EnqueueJobResponse struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

type KickRequest struct {
	Bound int `form:"bound" binding:"omitempty,min=1"`
}

type KickResponse struct {
	Queue  string `json:"queue"`
	Kicked int    `json:"kicked"`
}

type ListQueuesResponse struct {
	Queues []string `json:"queues"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
