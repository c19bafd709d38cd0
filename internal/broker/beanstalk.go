package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
	"github.com/cuongbtq/queue-worker/shared/beanstalk"
)

// beanstalkClient is the subset of *beanstalk.Client the adapter uses
type beanstalkClient interface {
	Watch(tube string)
	Reserve(timeout time.Duration) (uint64, []byte, error)
	Put(tube string, body []byte, pri uint32, delay, ttr time.Duration) (uint64, error)
	TubeStats(tube string) (map[string]string, error)
	Kick(tube string, bound int) (int, error)
	Delete(id uint64) error
	Release(id uint64, pri uint32, delay time.Duration) error
	Bury(id uint64, pri uint32) error
	StatsJob(id uint64) (map[string]string, error)
	Close() error
}

// BeanstalkOptions tunes the beanstalkd adapter
type BeanstalkOptions struct {
	ReserveTimeout time.Duration
	TTR            time.Duration
}

// Beanstalk maps queues onto beanstalkd tubes
type Beanstalk struct {
	client         beanstalkClient
	reserveTimeout time.Duration
	ttr            time.Duration
	queue          string
}

// NewBeanstalk wraps a connected beanstalkd client
func NewBeanstalk(client beanstalkClient, opts BeanstalkOptions) *Beanstalk {
	if opts.ReserveTimeout <= 0 {
		opts.ReserveTimeout = domain.DefaultReserveTimeout
	}
	if opts.TTR <= 0 {
		opts.TTR = time.Minute
	}
	return &Beanstalk{
		client:         client,
		reserveTimeout: opts.ReserveTimeout,
		ttr:            opts.TTR,
	}
}

// Watch switches the reserve tube set to queue
func (b *Beanstalk) Watch(_ context.Context, queue string) error {
	b.client.Watch(queue)
	b.queue = queue
	return nil
}

// ReadyCount returns current-jobs-ready for the tube. A tube beanstalkd has
// never seen is empty.
func (b *Beanstalk) ReadyCount(ctx context.Context, queue string) (int, error) {
	stats, err := b.QueueStats(ctx, queue)
	if err != nil {
		return 0, err
	}
	return stats.Ready, nil
}

// Reserve waits up to the reserve timeout for a job on the watched tube
func (b *Beanstalk) Reserve(ctx context.Context) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, body, err := b.client.Reserve(b.reserveTimeout)
	if err != nil {
		if beanstalk.IsTimeout(err) {
			return nil, domain.ErrReserveTimeout
		}
		return nil, err
	}

	return &domain.Job{
		ID:    strconv.FormatUint(id, 10),
		Queue: b.queue,
		Body:  body,
	}, nil
}

// Delete removes the job
func (b *Beanstalk) Delete(_ context.Context, job *domain.Job) error {
	id, err := parseJobID(job.ID)
	if err != nil {
		return err
	}
	return notReserved(b.client.Delete(id))
}

// Release returns the job to the tube at the default priority after delay
func (b *Beanstalk) Release(_ context.Context, job *domain.Job, delay time.Duration) error {
	id, err := parseJobID(job.ID)
	if err != nil {
		return err
	}
	return notReserved(b.client.Release(id, domain.DefaultPriority, delay))
}

// Bury moves the job to the buried list
func (b *Beanstalk) Bury(_ context.Context, job *domain.Job) error {
	id, err := parseJobID(job.ID)
	if err != nil {
		return err
	}
	return notReserved(b.client.Bury(id, domain.DefaultPriority))
}

// Stats reads stats-job for the job
func (b *Beanstalk) Stats(_ context.Context, job *domain.Job) (*domain.JobStats, error) {
	id, err := parseJobID(job.ID)
	if err != nil {
		return nil, err
	}

	raw, err := b.client.StatsJob(id)
	if err != nil {
		if beanstalk.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrJobNotFound, err)
		}
		return nil, err
	}

	return parseJobStats(raw)
}

// Put stores body on the queue tube
func (b *Beanstalk) Put(_ context.Context, queue string, body []byte, opts domain.EnqueueOptions) (string, error) {
	id, err := b.client.Put(queue, body, opts.Priority, opts.Delay, b.ttr)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(id, 10), nil
}

// QueueStats reads stats-tube for the queue
func (b *Beanstalk) QueueStats(_ context.Context, queue string) (*domain.QueueStats, error) {
	raw, err := b.client.TubeStats(queue)
	if err != nil {
		if beanstalk.IsNotFound(err) {
			return &domain.QueueStats{Queue: queue}, nil
		}
		return nil, err
	}

	stats := &domain.QueueStats{Queue: queue}
	fields := []struct {
		key string
		dst *int
	}{
		{"current-jobs-ready", &stats.Ready},
		{"current-jobs-reserved", &stats.Reserved},
		{"current-jobs-delayed", &stats.Delayed},
		{"current-jobs-buried", &stats.Buried},
	}
	for _, f := range fields {
		if *f.dst, err = intField(raw, f.key); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// Kick kicks up to bound jobs on the queue tube
func (b *Beanstalk) Kick(_ context.Context, queue string, bound int) (int, error) {
	return b.client.Kick(queue, bound)
}

// Close closes the connection
func (b *Beanstalk) Close() error {
	return b.client.Close()
}

func parseJobStats(raw map[string]string) (*domain.JobStats, error) {
	var (
		stats domain.JobStats
		err   error
	)
	if stats.Reserves, err = intField(raw, "reserves"); err != nil {
		return nil, err
	}
	if stats.Releases, err = intField(raw, "releases"); err != nil {
		return nil, err
	}
	if stats.Buries, err = intField(raw, "buries"); err != nil {
		return nil, err
	}
	age, err := intField(raw, "age")
	if err != nil {
		return nil, err
	}
	stats.Age = time.Duration(age) * time.Second
	return &stats, nil
}

func intField(raw map[string]string, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("stats response missing %q", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %q in stats response: %w", key, err)
	}
	return n, nil
}

func parseJobID(id string) (uint64, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid beanstalkd job id %q", domain.ErrJobNotFound, id)
	}
	return n, nil
}

// notReserved translates NOT_FOUND on an ack into ErrJobNotReserved
func notReserved(err error) error {
	if err != nil && beanstalk.IsNotFound(err) {
		return fmt.Errorf("%w: %v", domain.ErrJobNotReserved, err)
	}
	return err
}
