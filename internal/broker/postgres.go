package broker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
	"github.com/cuongbtq/queue-worker/shared/postgresql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_jobs (
    id             UUID PRIMARY KEY,
    queue          TEXT NOT NULL,
    body           BYTEA NOT NULL,
    state          TEXT NOT NULL DEFAULT 'ready',
    priority       BIGINT NOT NULL DEFAULT 1024,
    reserves       INT NOT NULL DEFAULT 0,
    releases       INT NOT NULL DEFAULT 0,
    buries         INT NOT NULL DEFAULT 0,
    visible_after  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    reserved_by    TEXT,
    reserved_until TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS queue_jobs_claim_idx ON queue_jobs (queue, state, priority, visible_after);
`

// PostgresOptions tunes the PostgreSQL adapter
type PostgresOptions struct {
	ReserveTimeout time.Duration
	PollInterval   time.Duration
	// TTR is how long a reservation lasts before the job becomes ready again
	TTR time.Duration
}

// Postgres is a broker backed by a single queue_jobs table. Reservations are
// claimed row by row with FOR UPDATE SKIP LOCKED, so any number of workers may
// share a queue.
type Postgres struct {
	client         *postgresql.Client
	db             *sqlx.DB
	logger         *slog.Logger
	reserveTimeout time.Duration
	pollInterval   time.Duration
	ttr            time.Duration

	mu     sync.Mutex
	queue  string
	tokens map[string]string
}

// NewPostgres wraps a connected PostgreSQL client
func NewPostgres(client *postgresql.Client, opts PostgresOptions, logger *slog.Logger) *Postgres {
	if opts.ReserveTimeout <= 0 {
		opts.ReserveTimeout = domain.DefaultReserveTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.TTR <= 0 {
		opts.TTR = time.Minute
	}
	return &Postgres{
		client:         client,
		db:             client.GetDB(),
		logger:         logger,
		reserveTimeout: opts.ReserveTimeout,
		pollInterval:   opts.PollInterval,
		ttr:            opts.TTR,
		tokens:         make(map[string]string),
	}
}

// Migrate creates the queue_jobs table if it does not exist
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create queue_jobs table: %w", err)
	}
	p.logger.Info("Queue table ready")
	return nil
}

// Watch sets the queue Reserve claims from
func (p *Postgres) Watch(_ context.Context, queue string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = queue
	return nil
}

// ReadyCount counts ready jobs whose delay has passed
func (p *Postgres) ReadyCount(ctx context.Context, queue string) (int, error) {
	stats, err := p.QueueStats(ctx, queue)
	if err != nil {
		return 0, err
	}
	return stats.Ready, nil
}

// Reserve polls for a claimable job until the reserve timeout elapses
func (p *Postgres) Reserve(ctx context.Context) (*domain.Job, error) {
	p.mu.Lock()
	queue := p.queue
	p.mu.Unlock()
	if queue == "" {
		return nil, errors.New("no queue watched")
	}

	deadline := time.Now().Add(p.reserveTimeout)
	for {
		job, err := p.claim(ctx, queue)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, domain.ErrReserveTimeout
		}
		if wait > p.pollInterval {
			wait = p.pollInterval
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

const claimQuery = `
UPDATE queue_jobs
SET state = 'reserved',
    reserves = reserves + 1,
    reserved_by = $2,
    reserved_until = NOW() + $3::float8 * INTERVAL '1 second'
WHERE id = (
    SELECT id FROM queue_jobs
    WHERE queue = $1
      AND ((state = 'ready' AND visible_after <= NOW())
        OR (state = 'reserved' AND reserved_until < NOW()))
    ORDER BY priority, visible_after, created_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, queue, body`

type jobRow struct {
	ID    string `db:"id"`
	Queue string `db:"queue"`
	Body  []byte `db:"body"`
}

func (p *Postgres) claim(ctx context.Context, queue string) (*domain.Job, error) {
	token := uuid.New().String()

	var row jobRow
	if err := p.db.GetContext(ctx, &row, claimQuery, queue, token, p.ttr.Seconds()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	p.mu.Lock()
	p.tokens[row.ID] = token
	p.mu.Unlock()

	return &domain.Job{ID: row.ID, Queue: row.Queue, Body: row.Body}, nil
}

// token returns the reservation token for a job this adapter holds
func (p *Postgres) token(jobID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tokens[jobID]
	return t, ok
}

func (p *Postgres) forget(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, jobID)
}

// settle runs an acknowledgment scoped to the caller's reservation
func (p *Postgres) settle(ctx context.Context, job *domain.Job, query string, args ...any) error {
	token, ok := p.token(job.ID)
	if !ok {
		return domain.ErrJobNotReserved
	}

	res, err := p.db.ExecContext(ctx, query, append([]any{job.ID, token}, args...)...)
	if err != nil {
		return err
	}
	p.forget(job.ID)

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrJobNotReserved
	}
	return nil
}

// Delete removes the job if this adapter still holds it
func (p *Postgres) Delete(ctx context.Context, job *domain.Job) error {
	return p.settle(ctx, job,
		`DELETE FROM queue_jobs WHERE id = $1 AND state = 'reserved' AND reserved_by = $2`)
}

// Release makes the job ready again after delay
func (p *Postgres) Release(ctx context.Context, job *domain.Job, delay time.Duration) error {
	return p.settle(ctx, job, `
UPDATE queue_jobs
SET state = 'ready', releases = releases + 1,
    visible_after = NOW() + $3::float8 * INTERVAL '1 second',
    reserved_by = NULL, reserved_until = NULL
WHERE id = $1 AND state = 'reserved' AND reserved_by = $2`, delay.Seconds())
}

// Bury marks the job buried
func (p *Postgres) Bury(ctx context.Context, job *domain.Job) error {
	return p.settle(ctx, job, `
UPDATE queue_jobs
SET state = 'buried', buries = buries + 1,
    reserved_by = NULL, reserved_until = NULL
WHERE id = $1 AND state = 'reserved' AND reserved_by = $2`)
}

// Stats reads the job's counters from its row
func (p *Postgres) Stats(ctx context.Context, job *domain.Job) (*domain.JobStats, error) {
	var row struct {
		Reserves  int       `db:"reserves"`
		Releases  int       `db:"releases"`
		Buries    int       `db:"buries"`
		CreatedAt time.Time `db:"created_at"`
	}
	err := p.db.GetContext(ctx, &row,
		`SELECT reserves, releases, buries, created_at FROM queue_jobs WHERE id = $1`, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}

	return &domain.JobStats{
		Reserves: row.Reserves,
		Releases: row.Releases,
		Buries:   row.Buries,
		Age:      time.Since(row.CreatedAt),
	}, nil
}

// Put inserts a ready or delayed job and returns its id
func (p *Postgres) Put(ctx context.Context, queue string, body []byte, opts domain.EnqueueOptions) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `
INSERT INTO queue_jobs (id, queue, body, priority, visible_after)
VALUES ($1, $2, $3, $4, NOW() + $5::float8 * INTERVAL '1 second')`,
		id, queue, body, int64(opts.Priority), opts.Delay.Seconds())
	if err != nil {
		return "", fmt.Errorf("failed to insert job: %w", err)
	}
	return id, nil
}

const queueStatsQuery = `
SELECT
    COUNT(*) FILTER (WHERE (state = 'ready' AND visible_after <= NOW())
                        OR (state = 'reserved' AND reserved_until < NOW())) AS ready,
    COUNT(*) FILTER (WHERE state = 'reserved' AND reserved_until >= NOW()) AS reserved,
    COUNT(*) FILTER (WHERE state = 'ready' AND visible_after > NOW()) AS delayed,
    COUNT(*) FILTER (WHERE state = 'buried') AS buried
FROM queue_jobs
WHERE queue = $1`

// QueueStats counts the queue's jobs by state
func (p *Postgres) QueueStats(ctx context.Context, queue string) (*domain.QueueStats, error) {
	var row struct {
		Ready    int `db:"ready"`
		Reserved int `db:"reserved"`
		Delayed  int `db:"delayed"`
		Buried   int `db:"buried"`
	}
	if err := p.db.GetContext(ctx, &row, queueStatsQuery, queue); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &domain.QueueStats{
		Queue:    queue,
		Ready:    row.Ready,
		Reserved: row.Reserved,
		Delayed:  row.Delayed,
		Buried:   row.Buried,
	}, nil
}

// Kick makes up to bound buried jobs ready. With no buried jobs it makes
// delayed jobs ready instead.
func (p *Postgres) Kick(ctx context.Context, queue string, bound int) (int, error) {
	n, err := p.kick(ctx, queue, bound, `state = 'buried'`)
	if err != nil || n > 0 {
		return n, err
	}
	return p.kick(ctx, queue, bound, `state = 'ready' AND visible_after > NOW()`)
}

func (p *Postgres) kick(ctx context.Context, queue string, bound int, filter string) (int, error) {
	query := `
UPDATE queue_jobs
SET state = 'ready', visible_after = NOW()
WHERE id IN (
    SELECT id FROM queue_jobs
    WHERE queue = $1 AND ` + filter + `
    ORDER BY created_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)`
	res, err := p.db.ExecContext(ctx, query, queue, bound)
	if err != nil {
		return 0, fmt.Errorf("failed to kick jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the database pool
func (p *Postgres) Close() error {
	return p.client.Close()
}
