package beanstalk

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beanstalkd/go-beanstalk"
)

// Config holds beanstalkd connection configuration
type Config struct {
	Addr           string
	RetryAttempts  int
	RetryInterval  time.Duration
	ConnectTimeout time.Duration
}

// Client is a beanstalkd connection that is safe for use by multiple goroutines.
// The underlying protocol connection tracks the used and watched tubes, so all
// commands are serialized.
type Client struct {
	mu     sync.Mutex
	conn   *beanstalk.Conn
	config *Config
	logger *slog.Logger

	watched *beanstalk.TubeSet
}

// NewClient dials beanstalkd, retrying up to RetryAttempts times
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var (
		conn *beanstalk.Conn
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		logger.Info("Connecting to beanstalkd",
			slog.String("addr", config.Addr),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		conn, err = beanstalk.DialTimeout("tcp", config.Addr, timeout)
		if err == nil {
			break
		}

		logger.Error("Failed to connect to beanstalkd",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(config.RetryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to beanstalkd after %d attempts: %w", attempts, err)
	}

	logger.Info("Successfully connected to beanstalkd",
		slog.String("addr", config.Addr),
	)

	return &Client{
		conn:   conn,
		config: config,
		logger: logger,
	}, nil
}

// Watch makes tube the only tube Reserve takes jobs from
func (c *Client) Watch(tube string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watched = beanstalk.NewTubeSet(c.conn, tube)
}

// Reserve waits up to timeout for a job on the watched tube
func (c *Client) Reserve(timeout time.Duration) (uint64, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watched == nil {
		return 0, nil, errors.New("no tube watched")
	}
	return c.watched.Reserve(timeout)
}

// Put stores body on tube
func (c *Client) Put(tube string, body []byte, pri uint32, delay, ttr time.Duration) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return beanstalk.NewTube(c.conn, tube).Put(body, pri, delay, ttr)
}

// TubeStats returns the raw stats-tube response for tube
func (c *Client) TubeStats(tube string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return beanstalk.NewTube(c.conn, tube).Stats()
}

// Kick moves up to bound buried (or, if none, delayed) jobs on tube back to ready
func (c *Client) Kick(tube string, bound int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return beanstalk.NewTube(c.conn, tube).Kick(bound)
}

func (c *Client) Delete(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Delete(id)
}

func (c *Client) Release(id uint64, pri uint32, delay time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Release(id, pri, delay)
}

func (c *Client) Bury(id uint64, pri uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Bury(id, pri)
}

// StatsJob returns the raw stats-job response for id
func (c *Client) StatsJob(id uint64) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.StatsJob(id)
}

// Close closes the beanstalkd connection
func (c *Client) Close() error {
	c.logger.Info("Closing beanstalkd connection")

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Close(); err != nil {
		c.logger.Error("Failed to close beanstalkd connection",
			slog.Any("error", err),
		)
		return err
	}

	c.logger.Info("Beanstalkd connection closed successfully")
	return nil
}

// IsNotFound reports whether err is beanstalkd's NOT_FOUND response
func IsNotFound(err error) bool {
	return isResponse(err, beanstalk.ErrNotFound)
}

// IsTimeout reports whether err is beanstalkd's TIMED_OUT response
func IsTimeout(err error) bool {
	return isResponse(err, beanstalk.ErrTimeout)
}

func isResponse(err, want error) bool {
	if errors.Is(err, want) {
		return true
	}
	var connErr beanstalk.ConnError
	if errors.As(err, &connErr) {
		return connErr.Err == want
	}
	return false
}
