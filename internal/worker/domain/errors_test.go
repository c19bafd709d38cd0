package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "reservation error",
			err:  &ReservationError{Queue: "emails", Err: ErrReserveTimeout},
			want: "failed to reserve job from emails: reserve timed out",
		},
		{
			name: "decode error",
			err:  &DecodeError{Err: ErrInvalidPayload},
			want: "failed to decode job payload: invalid job payload",
		},
		{
			name: "handler fault from error",
			err:  &HandlerFault{Err: errors.New("smtp down")},
			want: "handler failed: smtp down",
		},
		{
			name: "handler fault from panic",
			err:  &HandlerFault{Err: errors.New("boom"), Panic: "boom"},
			want: "handler panicked: boom",
		},
		{
			name: "configuration error",
			err:  &ConfigurationError{Queue: "emails", Err: ErrQueueNotBound},
			want: "configuration error for queue emails: no handler bound to queue",
		},
		{
			name: "ack error",
			err:  &AckError{Op: OpDelete, JobID: "42", Err: ErrJobNotReserved},
			want: "failed to delete job 42: job is not reserved by this worker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	err := fmt.Errorf("run failed: %w", &ReservationError{Queue: "emails", Err: ErrReserveTimeout})
	assert.ErrorIs(t, err, ErrReserveTimeout)

	var resErr *ReservationError
	assert.ErrorAs(t, err, &resErr)
	assert.Equal(t, "emails", resErr.Queue)

	ackErr := &AckError{Op: OpRelease, JobID: "7", Err: ErrJobNotReserved}
	assert.ErrorIs(t, ackErr, ErrJobNotReserved)
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "reservation", err: &ReservationError{Queue: "q", Err: ErrReserveTimeout}, want: true},
		{name: "configuration", err: &ConfigurationError{Queue: "q", Err: ErrQueueNotBound}, want: true},
		{name: "wrapped configuration", err: fmt.Errorf("x: %w", &ConfigurationError{Reason: "r"}), want: true},
		{name: "decode", err: &DecodeError{Err: ErrInvalidPayload}, want: false},
		{name: "handler", err: &HandlerFault{Err: errors.New("x")}, want: false},
		{name: "ack", err: &AckError{Op: OpBury, Err: ErrJobNotFound}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}
