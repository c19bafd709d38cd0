package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
	"github.com/stretchr/testify/require"
)

// call records one broker interaction
type call struct {
	Op    string
	JobID string
	Delay time.Duration
}

// fakeBroker is an in-memory Broker that records every call in order
type fakeBroker struct {
	mu sync.Mutex

	jobs     []*domain.Job
	reserves map[string]int
	calls    []call
	watched  []string

	// infinite makes the queue always report a ready job and hand out fresh ones
	infinite bool
	nextID   int

	readyErr   error
	reserveErr error
	statsErr   error
	deleteErr  error
	releaseErr error
	buryErr    error
	watchErr   error
}

func newFakeBroker(jobs ...*domain.Job) *fakeBroker {
	return &fakeBroker{
		jobs:     jobs,
		reserves: make(map[string]int),
	}
}

// withPriorReserves records that job id was reserved n times before this run
func (b *fakeBroker) withPriorReserves(id string, n int) *fakeBroker {
	b.reserves[id] = n
	return b
}

func (b *fakeBroker) record(op, jobID string, delay time.Duration) {
	b.calls = append(b.calls, call{Op: op, JobID: jobID, Delay: delay})
}

func (b *fakeBroker) Watch(_ context.Context, queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("watch", "", 0)
	b.watched = append(b.watched, queue)
	return b.watchErr
}

func (b *fakeBroker) ReadyCount(_ context.Context, _ string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("ready", "", 0)
	if b.readyErr != nil {
		return 0, b.readyErr
	}
	if b.infinite {
		return 1, nil
	}
	return len(b.jobs), nil
}

func (b *fakeBroker) Reserve(_ context.Context) (*domain.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("reserve", "", 0)
	if b.reserveErr != nil {
		return nil, b.reserveErr
	}

	var job *domain.Job
	switch {
	case len(b.jobs) > 0:
		job = b.jobs[0]
		b.jobs = b.jobs[1:]
	case b.infinite:
		b.nextID++
		job = &domain.Job{ID: "gen-" + strconv.Itoa(b.nextID), Body: []byte(`{}`)}
	default:
		return nil, domain.ErrReserveTimeout
	}

	b.reserves[job.ID]++
	return job, nil
}

func (b *fakeBroker) Delete(_ context.Context, job *domain.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("delete", job.ID, 0)
	return b.deleteErr
}

func (b *fakeBroker) Release(_ context.Context, job *domain.Job, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("release", job.ID, delay)
	return b.releaseErr
}

func (b *fakeBroker) Bury(_ context.Context, job *domain.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("bury", job.ID, 0)
	return b.buryErr
}

func (b *fakeBroker) Stats(_ context.Context, job *domain.Job) (*domain.JobStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("stats", job.ID, 0)
	if b.statsErr != nil {
		return nil, b.statsErr
	}
	return &domain.JobStats{Reserves: b.reserves[job.ID]}, nil
}

// actions returns the recorded terminal calls (delete/release/bury) for a job
func (b *fakeBroker) actions(jobID string) []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []call
	for _, c := range b.calls {
		if c.JobID != jobID {
			continue
		}
		switch c.Op {
		case "delete", "release", "bury":
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBroker) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func returning(outcome int) HandlerFunc {
	return func(context.Context, domain.Payload) (int, error) {
		return outcome, nil
	}
}

func failing(err error) HandlerFunc {
	return func(context.Context, domain.Payload) (int, error) {
		return 1, err
	}
}

func newJob(id string) *domain.Job {
	return &domain.Job{ID: id, Body: []byte(`{"to":"user@example.com"}`)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestWorker binds handler to queue and returns a worker using broker
func newTestWorker(t *testing.T, broker Broker, queue string, handler Handler, opts ...func(*Config)) *Worker {
	t.Helper()

	registry := NewRegistry()
	require.NoError(t, registry.Bind(queue, Direct(handler)))

	cfg := &Config{
		Logger:   discardLogger(),
		Broker:   broker,
		Registry: registry,
		WorkerID: "test-worker",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWorker(cfg)
}

// decodeLogLines parses JSON log output into one map per record
func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}
