package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beanstalkd/go-beanstalk"
	"github.com/cuongbtq/queue-worker/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBeanstalkClient struct {
	watched    string
	reserveID  uint64
	reserveErr error
	tubeStats  map[string]string
	tubeErr    error
	jobStats   map[string]string
	jobErr     error
	ackErr     error
	put        []byte
	putPri     uint32
	putDelay   time.Duration
	putTTR     time.Duration
	released   time.Duration
	buried     bool
	deleted    uint64
	kickBound  int
	closed     bool
}

func (c *fakeBeanstalkClient) Watch(tube string) { c.watched = tube }

func (c *fakeBeanstalkClient) Reserve(time.Duration) (uint64, []byte, error) {
	if c.reserveErr != nil {
		return 0, nil, c.reserveErr
	}
	return c.reserveID, []byte(`{"a":1}`), nil
}

func (c *fakeBeanstalkClient) Put(_ string, body []byte, pri uint32, delay, ttr time.Duration) (uint64, error) {
	c.put, c.putPri, c.putDelay, c.putTTR = body, pri, delay, ttr
	return 99, nil
}

func (c *fakeBeanstalkClient) TubeStats(string) (map[string]string, error) {
	return c.tubeStats, c.tubeErr
}

func (c *fakeBeanstalkClient) Kick(_ string, bound int) (int, error) {
	c.kickBound = bound
	return 1, nil
}

func (c *fakeBeanstalkClient) Delete(id uint64) error {
	c.deleted = id
	return c.ackErr
}

func (c *fakeBeanstalkClient) Release(_ uint64, _ uint32, delay time.Duration) error {
	c.released = delay
	return c.ackErr
}

func (c *fakeBeanstalkClient) Bury(uint64, uint32) error {
	c.buried = true
	return c.ackErr
}

func (c *fakeBeanstalkClient) StatsJob(uint64) (map[string]string, error) {
	return c.jobStats, c.jobErr
}

func (c *fakeBeanstalkClient) Close() error {
	c.closed = true
	return nil
}

var _ Backend = (*Beanstalk)(nil)

func TestBeanstalk_Reserve(t *testing.T) {
	client := &fakeBeanstalkClient{reserveID: 17}
	b := NewBeanstalk(client, BeanstalkOptions{})
	ctx := context.Background()

	require.NoError(t, b.Watch(ctx, "emails"))
	assert.Equal(t, "emails", client.watched)

	job, err := b.Reserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.Job{ID: "17", Queue: "emails", Body: []byte(`{"a":1}`)}, job)
}

func TestBeanstalk_ReserveTimeout(t *testing.T) {
	client := &fakeBeanstalkClient{reserveErr: beanstalk.ConnError{Op: "reserve-with-timeout", Err: beanstalk.ErrTimeout}}
	b := NewBeanstalk(client, BeanstalkOptions{})

	_, err := b.Reserve(context.Background())

	assert.ErrorIs(t, err, domain.ErrReserveTimeout)
}

func TestBeanstalk_ReserveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBeanstalk(&fakeBeanstalkClient{}, BeanstalkOptions{}).Reserve(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBeanstalk_QueueStats(t *testing.T) {
	client := &fakeBeanstalkClient{tubeStats: map[string]string{
		"name":                  "emails",
		"current-jobs-ready":    "4",
		"current-jobs-reserved": "1",
		"current-jobs-delayed":  "2",
		"current-jobs-buried":   "3",
	}}
	b := NewBeanstalk(client, BeanstalkOptions{})

	stats, err := b.QueueStats(context.Background(), "emails")
	require.NoError(t, err)
	assert.Equal(t, &domain.QueueStats{Queue: "emails", Ready: 4, Reserved: 1, Delayed: 2, Buried: 3}, stats)

	ready, err := b.ReadyCount(context.Background(), "emails")
	require.NoError(t, err)
	assert.Equal(t, 4, ready)
}

func TestBeanstalk_ReadyCountUnknownTube(t *testing.T) {
	client := &fakeBeanstalkClient{tubeErr: beanstalk.ConnError{Op: "stats-tube", Err: beanstalk.ErrNotFound}}

	ready, err := NewBeanstalk(client, BeanstalkOptions{}).ReadyCount(context.Background(), "emails")

	require.NoError(t, err)
	assert.Zero(t, ready)
}

func TestBeanstalk_ReadyCountError(t *testing.T) {
	client := &fakeBeanstalkClient{tubeErr: errors.New("broken pipe")}

	_, err := NewBeanstalk(client, BeanstalkOptions{}).ReadyCount(context.Background(), "emails")

	assert.EqualError(t, err, "broken pipe")
}

func TestBeanstalk_QueueStatsMalformed(t *testing.T) {
	client := &fakeBeanstalkClient{tubeStats: map[string]string{"current-jobs-ready": "x"}}

	_, err := NewBeanstalk(client, BeanstalkOptions{}).QueueStats(context.Background(), "emails")

	assert.ErrorContains(t, err, `invalid "current-jobs-ready"`)
}

func TestBeanstalk_Stats(t *testing.T) {
	client := &fakeBeanstalkClient{jobStats: map[string]string{
		"id":       "17",
		"reserves": "4",
		"releases": "3",
		"buries":   "0",
		"age":      "120",
	}}
	b := NewBeanstalk(client, BeanstalkOptions{})

	stats, err := b.Stats(context.Background(), &domain.Job{ID: "17"})

	require.NoError(t, err)
	assert.Equal(t, &domain.JobStats{Reserves: 4, Releases: 3, Age: 2 * time.Minute}, stats)
}

func TestBeanstalk_StatsNotFound(t *testing.T) {
	client := &fakeBeanstalkClient{jobErr: beanstalk.ConnError{Op: "stats-job", Err: beanstalk.ErrNotFound}}

	_, err := NewBeanstalk(client, BeanstalkOptions{}).Stats(context.Background(), &domain.Job{ID: "17"})

	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestBeanstalk_Acks(t *testing.T) {
	client := &fakeBeanstalkClient{}
	b := NewBeanstalk(client, BeanstalkOptions{})
	ctx := context.Background()
	job := &domain.Job{ID: "17"}

	require.NoError(t, b.Delete(ctx, job))
	assert.Equal(t, uint64(17), client.deleted)

	require.NoError(t, b.Release(ctx, job, time.Minute))
	assert.Equal(t, time.Minute, client.released)

	require.NoError(t, b.Bury(ctx, job))
	assert.True(t, client.buried)
}

func TestBeanstalk_AckNotReserved(t *testing.T) {
	client := &fakeBeanstalkClient{ackErr: beanstalk.ConnError{Op: "release", Err: beanstalk.ErrNotFound}}
	b := NewBeanstalk(client, BeanstalkOptions{})
	job := &domain.Job{ID: "17"}

	assert.ErrorIs(t, b.Release(context.Background(), job, time.Minute), domain.ErrJobNotReserved)
	assert.ErrorIs(t, b.Delete(context.Background(), job), domain.ErrJobNotReserved)
	assert.ErrorIs(t, b.Bury(context.Background(), job), domain.ErrJobNotReserved)
}

func TestBeanstalk_InvalidJobID(t *testing.T) {
	b := NewBeanstalk(&fakeBeanstalkClient{}, BeanstalkOptions{})

	err := b.Delete(context.Background(), &domain.Job{ID: "not-a-number"})

	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestBeanstalk_Put(t *testing.T) {
	client := &fakeBeanstalkClient{}
	b := NewBeanstalk(client, BeanstalkOptions{TTR: 2 * time.Minute})

	id, err := b.Put(context.Background(), "emails", []byte(`{}`), domain.EnqueueOptions{Delay: time.Second, Priority: 7})

	require.NoError(t, err)
	assert.Equal(t, "99", id)
	assert.Equal(t, []byte(`{}`), client.put)
	assert.Equal(t, uint32(7), client.putPri)
	assert.Equal(t, time.Second, client.putDelay)
	assert.Equal(t, 2*time.Minute, client.putTTR)
}

func TestBeanstalk_KickAndClose(t *testing.T) {
	client := &fakeBeanstalkClient{}
	b := NewBeanstalk(client, BeanstalkOptions{})

	n, err := b.Kick(context.Background(), "emails", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 10, client.kickBound)

	require.NoError(t, b.Close())
	assert.True(t, client.closed)
}
