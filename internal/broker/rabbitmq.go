package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cuongbtq/queue-worker/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Headers carrying beanstalkd-style job statistics across redeliveries
const (
	headerReserves = "x-reserves"
	headerReleases = "x-releases"
	headerBuries   = "x-buries"
)

// amqpClient is the subset of *rabbitmq.Client the adapter uses
type amqpClient interface {
	DeclareQueue(name string, args amqp.Table) (amqp.Queue, error)
	Get(queue string) (amqp.Delivery, bool, error)
	Ack(tag uint64) error
	PublishWithRetry(ctx context.Context, queue string, msg amqp.Publishing) error
	Close() error
}

// RabbitMQOptions tunes the RabbitMQ adapter
type RabbitMQOptions struct {
	ReserveTimeout time.Duration
	PollInterval   time.Duration
}

// reservation is a delivery the adapter holds unacknowledged
type reservation struct {
	queue    string
	delivery amqp.Delivery
	stats    domain.JobStats
}

// RabbitMQ emulates beanstalkd semantics on RabbitMQ. Every queue gets two
// companions: "<queue>.delay", whose expired messages dead-letter back into
// the queue, and "<queue>.buried", which holds buried jobs until kicked.
type RabbitMQ struct {
	client         amqpClient
	reserveTimeout time.Duration
	pollInterval   time.Duration

	mu       sync.Mutex
	queue    string
	declared map[string]bool
	held     map[string]*reservation
}

// NewRabbitMQ wraps a connected RabbitMQ client
func NewRabbitMQ(client amqpClient, opts RabbitMQOptions) *RabbitMQ {
	if opts.ReserveTimeout <= 0 {
		opts.ReserveTimeout = domain.DefaultReserveTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	return &RabbitMQ{
		client:         client,
		reserveTimeout: opts.ReserveTimeout,
		pollInterval:   opts.PollInterval,
		declared:       make(map[string]bool),
		held:           make(map[string]*reservation),
	}
}

func delayQueue(queue string) string  { return queue + ".delay" }
func buriedQueue(queue string) string { return queue + ".buried" }

// declare sets up queue and its companions once, returning the message
// counts of all three
func (r *RabbitMQ) declare(queue string) (ready, delayed, buried int, err error) {
	primary, err := r.client.DeclareQueue(queue, nil)
	if err != nil {
		return 0, 0, 0, err
	}
	delay, err := r.client.DeclareQueue(delayQueue(queue), amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	})
	if err != nil {
		return 0, 0, 0, err
	}
	bury, err := r.client.DeclareQueue(buriedQueue(queue), nil)
	if err != nil {
		return 0, 0, 0, err
	}

	r.mu.Lock()
	r.declared[queue] = true
	r.mu.Unlock()

	return primary.Messages, delay.Messages, bury.Messages, nil
}

func (r *RabbitMQ) ensureDeclared(queue string) error {
	r.mu.Lock()
	done := r.declared[queue]
	r.mu.Unlock()
	if done {
		return nil
	}
	_, _, _, err := r.declare(queue)
	return err
}

// Watch declares queue and makes it the one Reserve reads from
func (r *RabbitMQ) Watch(_ context.Context, queue string) error {
	if err := r.ensureDeclared(queue); err != nil {
		return err
	}
	r.mu.Lock()
	r.queue = queue
	r.mu.Unlock()
	return nil
}

// ReadyCount re-declares queue to read its message count
func (r *RabbitMQ) ReadyCount(_ context.Context, queue string) (int, error) {
	ready, _, _, err := r.declare(queue)
	return ready, err
}

// Reserve polls the watched queue until a message arrives or the reserve
// timeout elapses
func (r *RabbitMQ) Reserve(ctx context.Context) (*domain.Job, error) {
	r.mu.Lock()
	queue := r.queue
	r.mu.Unlock()
	if queue == "" {
		return nil, errors.New("no queue watched")
	}

	deadline := time.Now().Add(r.reserveTimeout)
	for {
		d, ok, err := r.client.Get(queue)
		if err != nil {
			return nil, fmt.Errorf("failed to get message: %w", err)
		}
		if ok {
			return r.hold(queue, d), nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, domain.ErrReserveTimeout
		}
		if wait > r.pollInterval {
			wait = r.pollInterval
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

func (r *RabbitMQ) hold(queue string, d amqp.Delivery) *domain.Job {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}

	stats := domain.JobStats{
		Reserves: headerInt(d.Headers, headerReserves) + 1,
		Releases: headerInt(d.Headers, headerReleases),
		Buries:   headerInt(d.Headers, headerBuries),
	}
	if !d.Timestamp.IsZero() {
		stats.Age = time.Since(d.Timestamp)
	}

	r.mu.Lock()
	r.held[id] = &reservation{queue: queue, delivery: d, stats: stats}
	r.mu.Unlock()

	return &domain.Job{ID: id, Queue: queue, Body: d.Body}
}

// lookup returns the reservation for job without giving it up
func (r *RabbitMQ) lookup(job *domain.Job) (*reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.held[job.ID]
	if !ok {
		return nil, domain.ErrJobNotReserved
	}
	return res, nil
}

// forget drops the reservation once its delivery has been settled
func (r *RabbitMQ) forget(job *domain.Job) {
	r.mu.Lock()
	delete(r.held, job.ID)
	r.mu.Unlock()
}

// Delete acknowledges the delivery. The job stays held if the ack fails.
func (r *RabbitMQ) Delete(_ context.Context, job *domain.Job) error {
	res, err := r.lookup(job)
	if err != nil {
		return err
	}
	if err := r.client.Ack(res.delivery.DeliveryTag); err != nil {
		return err
	}
	r.forget(job)
	return nil
}

// Release republishes the job to the delay queue with a per-message TTL and
// acknowledges the original delivery. A failed publish leaves the job held.
func (r *RabbitMQ) Release(ctx context.Context, job *domain.Job, delay time.Duration) error {
	res, err := r.lookup(job)
	if err != nil {
		return err
	}

	stats := res.stats
	stats.Releases++
	msg := republish(res.delivery, stats)

	target := res.queue
	if delay > 0 {
		target = delayQueue(res.queue)
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	return r.settle(ctx, job, res, target, msg)
}

// Bury moves the job to the buried queue. A failed publish leaves the job held.
func (r *RabbitMQ) Bury(ctx context.Context, job *domain.Job) error {
	res, err := r.lookup(job)
	if err != nil {
		return err
	}

	stats := res.stats
	stats.Buries++
	return r.settle(ctx, job, res, buriedQueue(res.queue), republish(res.delivery, stats))
}

// settle publishes the job's next copy, then gives up the reservation and
// acknowledges the delivery it came from
func (r *RabbitMQ) settle(ctx context.Context, job *domain.Job, res *reservation, target string, msg amqp.Publishing) error {
	if err := r.client.PublishWithRetry(ctx, target, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", target, err)
	}
	// the copy is out, so the old delivery must not be published again
	r.forget(job)
	return r.client.Ack(res.delivery.DeliveryTag)
}

// Stats returns the counters carried in the held delivery's headers
func (r *RabbitMQ) Stats(_ context.Context, job *domain.Job) (*domain.JobStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.held[job.ID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	stats := res.stats
	return &stats, nil
}

// Put publishes body to queue, or to its delay queue when opts.Delay is set
func (r *RabbitMQ) Put(ctx context.Context, queue string, body []byte, opts domain.EnqueueOptions) (string, error) {
	if err := r.ensureDeclared(queue); err != nil {
		return "", err
	}

	id := uuid.New().String()
	msg := amqp.Publishing{
		ContentType: "application/json",
		MessageId:   id,
		Body:        body,
		Timestamp:   time.Now(),
	}

	target := queue
	if opts.Delay > 0 {
		target = delayQueue(queue)
		msg.Expiration = strconv.FormatInt(opts.Delay.Milliseconds(), 10)
	}

	if err := r.client.PublishWithRetry(ctx, target, msg); err != nil {
		return "", err
	}
	return id, nil
}

// QueueStats counts ready, delayed and buried messages plus this process's reservations
func (r *RabbitMQ) QueueStats(_ context.Context, queue string) (*domain.QueueStats, error) {
	ready, delayed, buried, err := r.declare(queue)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	reserved := 0
	for _, res := range r.held {
		if res.queue == queue {
			reserved++
		}
	}
	r.mu.Unlock()

	return &domain.QueueStats{
		Queue:    queue,
		Ready:    ready,
		Reserved: reserved,
		Delayed:  delayed,
		Buried:   buried,
	}, nil
}

// Kick moves up to bound messages from the buried queue back to queue
func (r *RabbitMQ) Kick(ctx context.Context, queue string, bound int) (int, error) {
	if err := r.ensureDeclared(queue); err != nil {
		return 0, err
	}

	kicked := 0
	for kicked < bound {
		d, ok, err := r.client.Get(buriedQueue(queue))
		if err != nil {
			return kicked, fmt.Errorf("failed to get buried message: %w", err)
		}
		if !ok {
			break
		}

		msg := amqp.Publishing{
			ContentType: d.ContentType,
			MessageId:   d.MessageId,
			Headers:     d.Headers,
			Body:        d.Body,
			Timestamp:   d.Timestamp,
		}
		if err := r.client.PublishWithRetry(ctx, queue, msg); err != nil {
			return kicked, err
		}
		if err := r.client.Ack(d.DeliveryTag); err != nil {
			return kicked, err
		}
		kicked++
	}
	return kicked, nil
}

// Close closes the underlying connection
func (r *RabbitMQ) Close() error {
	return r.client.Close()
}

// republish builds the message that carries a held job to its next queue
func republish(d amqp.Delivery, stats domain.JobStats) amqp.Publishing {
	return amqp.Publishing{
		ContentType: d.ContentType,
		MessageId:   d.MessageId,
		Body:        d.Body,
		Timestamp:   d.Timestamp,
		Headers: amqp.Table{
			headerReserves: int64(stats.Reserves),
			headerReleases: int64(stats.Releases),
			headerBuries:   int64(stats.Buries),
		},
	}
}

func headerInt(headers amqp.Table, key string) int {
	switch v := headers[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}
