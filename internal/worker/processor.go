package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/queue-worker/internal/metrics"
	"github.com/cuongbtq/queue-worker/internal/worker/domain"
)

// result is what executing a job produced: either an outcome code or a fault
type result struct {
	Outcome int
	Fault   error
}

// processJob settles a reserved job with exactly one of: delete, release,
// or bury followed by release
func (w *Worker) processJob(ctx context.Context, handler Handler, job *domain.Job, summary *Summary) {
	logger := w.logger.With(
		slog.String("job_id", job.ID),
		slog.String("queue", job.Queue),
	)

	logger.Debug("Received job")

	res := w.execute(ctx, handler, job)

	switch {
	case res.Fault != nil:
		w.handleFault(ctx, logger, job, res.Fault, summary)

	case res.Outcome == domain.OutcomeSuccess:
		logger.Debug("Finished, deleting job")
		if err := w.broker.Delete(ctx, job); err != nil {
			w.reportAckError(logger, job, domain.OpDelete, err, summary)
			return
		}
		summary.Deleted++
		metrics.JobsTotal.WithLabelValues(job.Queue, metrics.ActionDeleted).Inc()

	default:
		logger.Error("Worker returned non-zero outcome, rescheduling job",
			slog.Int("outcome", res.Outcome),
			slog.Duration("delay", w.releaseDelay),
		)
		w.release(ctx, logger, job, summary)
	}
}

// execute decodes the job body and runs the handler on it
func (w *Worker) execute(ctx context.Context, handler Handler, job *domain.Job) result {
	payload, err := w.codec.Decode(job.Body)
	if err != nil {
		var decodeErr *domain.DecodeError
		if !errors.As(err, &decodeErr) {
			err = &domain.DecodeError{Err: err}
		}
		return result{Fault: err}
	}

	return dispatch(ctx, handler, payload)
}

// dispatch invokes handler, converting returned errors and panics into a HandlerFault
func dispatch(ctx context.Context, handler Handler, payload domain.Payload) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{Fault: &domain.HandlerFault{Err: fmt.Errorf("panic: %v", r), Panic: r}}
		}
	}()

	outcome, err := handler.Handle(ctx, payload)
	if err != nil {
		return result{Fault: &domain.HandlerFault{Err: err}}
	}
	return result{Outcome: outcome}
}

// handleFault reads the job's reserve count, buries it once it has been
// reserved too often, and releases it for a delayed retry
func (w *Worker) handleFault(ctx context.Context, logger *slog.Logger, job *domain.Job, fault error, summary *Summary) {
	summary.Faults++
	metrics.FaultsTotal.WithLabelValues(job.Queue, faultKind(fault)).Inc()

	logger.Debug("Received error, releasing job")
	logger.Error("Job processing failed",
		slog.String("error", fault.Error()),
	)

	stats, err := w.broker.Stats(ctx, job)
	if err != nil {
		w.reportAckError(logger, job, domain.OpStats, err, summary)
	} else {
		logger.Debug("Job reserve count",
			slog.Int("reserves", stats.Reserves),
		)

		if stats.Reserves > w.buryAfterReserves {
			logger.Debug("Job buried",
				slog.Int("reserves", stats.Reserves),
				slog.Int("bury_after_reserves", w.buryAfterReserves),
			)
			if err := w.broker.Bury(ctx, job); err != nil {
				w.reportAckError(logger, job, domain.OpBury, err, summary)
			} else {
				summary.Buried++
				metrics.JobsTotal.WithLabelValues(job.Queue, metrics.ActionBuried).Inc()
				if w.skipReleaseAfterBury {
					return
				}
			}
		}
	}

	w.release(ctx, logger, job, summary)
}

func (w *Worker) release(ctx context.Context, logger *slog.Logger, job *domain.Job, summary *Summary) {
	if err := w.broker.Release(ctx, job, w.releaseDelay); err != nil {
		w.reportAckError(logger, job, domain.OpRelease, err, summary)
		return
	}
	summary.Released++
	metrics.JobsTotal.WithLabelValues(job.Queue, metrics.ActionReleased).Inc()

	logger.Debug("Job released",
		slog.Duration("delay", w.releaseDelay),
	)
}

func (w *Worker) reportAckError(logger *slog.Logger, job *domain.Job, op string, err error, summary *Summary) {
	ackErr := &domain.AckError{Op: op, JobID: job.ID, Err: err}
	summary.AckErrors++
	metrics.AckErrorsTotal.WithLabelValues(job.Queue, op).Inc()

	logger.Error("Failed to acknowledge job",
		slog.String("op", op),
		slog.String("error", ackErr.Error()),
	)
}

func faultKind(err error) string {
	var decodeErr *domain.DecodeError
	if errors.As(err, &decodeErr) {
		return "decode"
	}
	return "handler"
}
