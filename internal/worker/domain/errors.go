package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrReserveTimeout is returned by a broker when no job became available
	// within the reservation timeout
	ErrReserveTimeout = errors.New("reserve timed out")

	// ErrJobNotReserved is returned when acknowledging a job this worker no longer holds
	ErrJobNotReserved = errors.New("job is not reserved by this worker")

	// ErrJobNotFound is returned when a job cannot be found in the broker
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownHandler is returned when a named handler was never registered
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrQueueNotBound is returned when no handler is bound to a queue
	ErrQueueNotBound = errors.New("no handler bound to queue")

	// ErrInvalidPayload is returned when a job body is not a key/value document
	ErrInvalidPayload = errors.New("invalid job payload")
)

// ReservationError means the broker could not hand out a job. Fatal for the run.
type ReservationError struct {
	Queue string
	Err   error
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("failed to reserve job from %s: %v", e.Queue, e.Err)
}

func (e *ReservationError) Unwrap() error {
	return e.Err
}

// DecodeError means a job body could not be decoded into a Payload
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "failed to decode job payload: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// HandlerFault means a handler returned an error or panicked
type HandlerFault struct {
	Err   error
	Panic any
}

func (e *HandlerFault) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler panicked: %v", e.Panic)
	}
	return "handler failed: " + e.Err.Error()
}

func (e *HandlerFault) Unwrap() error {
	return e.Err
}

// ConfigurationError means the worker cannot run against a queue at all
type ConfigurationError struct {
	Queue  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Queue != "" {
		msg += " for queue " + e.Queue
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// AckError means a delete, release, bury or stats call failed for a job
type AckError struct {
	Op    string
	JobID string
	Err   error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("failed to %s job %s: %v", e.Op, e.JobID, e.Err)
}

func (e *AckError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort a run
func IsFatal(err error) bool {
	var resErr *ReservationError
	var cfgErr *ConfigurationError
	return errors.As(err, &resErr) || errors.As(err, &cfgErr)
}
