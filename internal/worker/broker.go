package worker

import (
	"context"
	"time"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

// Broker is the transport the processing loop consumes jobs through.
//
// Reserve blocks until a job is available or the broker's reservation timeout
// elapses. Delete, Release and Bury surrender the job; each returns
// domain.ErrJobNotReserved when the job is no longer held by this worker.
type Broker interface {
	Watch(ctx context.Context, queue string) error
	ReadyCount(ctx context.Context, queue string) (int, error)
	Reserve(ctx context.Context) (*domain.Job, error)
	Delete(ctx context.Context, job *domain.Job) error
	Release(ctx context.Context, job *domain.Job, delay time.Duration) error
	Bury(ctx context.Context, job *domain.Job) error
	Stats(ctx context.Context, job *domain.Job) (*domain.JobStats, error)
}
