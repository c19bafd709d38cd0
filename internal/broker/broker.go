// Package broker adapts concrete message brokers to the worker loop and the
// enqueue service.
package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/queue-worker/internal/config"
	"github.com/cuongbtq/queue-worker/internal/queue"
	"github.com/cuongbtq/queue-worker/internal/worker"
	"github.com/cuongbtq/queue-worker/shared/beanstalk"
	"github.com/cuongbtq/queue-worker/shared/postgresql"
	"github.com/cuongbtq/queue-worker/shared/rabbitmq"
)

// Backend is a broker connection usable both by the worker and by producers
type Backend interface {
	worker.Broker
	queue.Producer
	Close() error
}

// Open connects to the broker selected by cfg.Broker.Driver
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Backend, error) {
	logger = logger.With(slog.String("driver", cfg.Broker.Driver))

	switch cfg.Broker.Driver {
	case config.DriverBeanstalkd:
		client, err := beanstalk.NewClient(&beanstalk.Config{
			Addr:          cfg.Beanstalkd.Addr,
			RetryAttempts: cfg.Beanstalkd.RetryAttempts,
			RetryInterval: cfg.Beanstalkd.RetryInterval,
		}, logger)
		if err != nil {
			return nil, err
		}
		return NewBeanstalk(client, BeanstalkOptions{
			ReserveTimeout: cfg.Broker.ReserveTimeout,
			TTR:            cfg.Beanstalkd.TTR,
		}), nil

	case config.DriverPostgres:
		client, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, err
		}

		pg := NewPostgres(client, PostgresOptions{
			ReserveTimeout: cfg.Broker.ReserveTimeout,
			PollInterval:   cfg.Database.PollInterval,
			TTR:            cfg.Database.VisibilityTTR,
		}, logger)
		if err := pg.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return pg, nil

	case config.DriverRabbitMQ:
		client, err := rabbitmq.NewClient(&rabbitmq.Config{
			Host:               cfg.RabbitMQ.Host,
			Port:               cfg.RabbitMQ.Port,
			User:               cfg.RabbitMQ.User,
			Password:           cfg.RabbitMQ.Password,
			VHost:              cfg.RabbitMQ.VHost,
			RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
			RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
			Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
			ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
			PublishRetries:     cfg.RabbitMQ.Publish.RetryAttempts,
			PublishRetryDelay:  cfg.RabbitMQ.Publish.RetryInterval,
			PublishBackoffMult: cfg.RabbitMQ.Publish.BackoffMultiplier,
		}, logger)
		if err != nil {
			return nil, err
		}
		return NewRabbitMQ(client, RabbitMQOptions{
			ReserveTimeout: cfg.Broker.ReserveTimeout,
			PollInterval:   cfg.RabbitMQ.PollInterval,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported broker driver: %q", cfg.Broker.Driver)
	}
}
