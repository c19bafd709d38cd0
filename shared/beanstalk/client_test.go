package beanstalk

import (
	"errors"
	"testing"

	"github.com/beanstalkd/go-beanstalk"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "bare sentinel", err: beanstalk.ErrNotFound, want: true},
		{name: "conn error", err: beanstalk.ConnError{Op: "delete", Err: beanstalk.ErrNotFound}, want: true},
		{name: "other response", err: beanstalk.ConnError{Op: "delete", Err: beanstalk.ErrTimeout}, want: false},
		{name: "unrelated", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFound(tt.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(beanstalk.ConnError{Op: "reserve-with-timeout", Err: beanstalk.ErrTimeout}))
	assert.False(t, IsTimeout(beanstalk.ConnError{Op: "reserve-with-timeout", Err: beanstalk.ErrNotFound}))
}
