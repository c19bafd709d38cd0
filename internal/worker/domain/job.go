package domain

import "time"

// Job is a reserved unit of work handed out by the broker.
// The broker owns the job; the worker only holds it until it is deleted,
// released or buried.
type Job struct {
	ID    string
	Queue string
	Body  []byte
}

// JobStats is a point-in-time snapshot of a job's delivery statistics
type JobStats struct {
	// Reserves is the number of times the job has been reserved, including
	// the current reservation.
	Reserves int
	Releases int
	Buries   int
	Age      time.Duration
}

// QueueStats holds job counts for a single queue
type QueueStats struct {
	Queue    string `json:"queue"`
	Ready    int    `json:"ready"`
	Reserved int    `json:"reserved"`
	Delayed  int    `json:"delayed"`
	Buried   int    `json:"buried"`
}

// Payload is a decoded job body
type Payload map[string]any

// EnqueueOptions controls how a job is put on a queue
type EnqueueOptions struct {
	Delay    time.Duration
	Priority uint32
}
