package server

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/loan-sdk/modules/loan/services"
	"github.com/iota-uz/loan-sdk/pkg/composables"
	"github.com/iota-uz/loan-sdk/pkg/configuration"
	"github.com/iota-uz/loan-sdk/pkg/taskqueue"
)

// TaskBackend is the enqueue side handed to modules plus the hook that starts
// the workers once every topic is registered on Router.
type TaskBackend struct {
	Router   *taskqueue.Router
	Enqueuer taskqueue.Enqueuer

	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func NewTaskBackend(conf *configuration.Configuration, pool *pgxpool.Pool, logger *logrus.Logger) (*TaskBackend, error) {
	opts := conf.TaskQueue
	log := logger.WithField("component", "taskqueue")
	router := taskqueue.NewRouter()
	retry := services.NewRetryPolicy(opts.MaxRetries, opts.BaseBackoff, opts.MaxBackoff, opts.JitterMax)

	if opts.Backend == "memory" {
		p, err := taskqueue.NewPool(router, taskqueue.PoolOptions{
			Workers:         opts.Workers,
			Buffer:          opts.Buffer,
			Retry:           retry,
			DispatchTimeout: opts.DispatchTimeout,
			Logger:          log,
		})
		if err != nil {
			return nil, err
		}
		return &TaskBackend{
			Router:   router,
			Enqueuer: p,
			start: func(ctx context.Context) error {
				p.Start(composables.WithPool(ctx, pool))
				return nil
			},
			stop: p.Close,
		}, nil
	}

	table, err := taskqueue.ParseIdentifier(opts.Table)
	if err != nil {
		return nil, err
	}
	publisher, err := taskqueue.NewPublisher(table)
	if err != nil {
		return nil, err
	}
	relay, err := taskqueue.NewRelay(pool, table, router, taskqueue.RelayOptions{
		PollInterval:    opts.PollInterval,
		BatchSize:       opts.BatchSize,
		LockTTL:         opts.LockTTL,
		SingleActive:    opts.SingleActive,
		LastErrorMaxLen: opts.LastErrorMaxBytes,
		Retry:           retry,
		DispatchTimeout: opts.DispatchTimeout,
		Logger:          log.WithField("table", taskqueue.TableLabel(table)),
	})
	if err != nil {
		return nil, err
	}
	var cleaner *taskqueue.Cleaner
	if opts.CleanerEnabled {
		cleaner, err = taskqueue.NewCleaner(pool, table, taskqueue.CleanerOptions{
			Enabled:       true,
			Interval:      opts.CleanerInterval,
			Retention:     opts.CleanerRetention,
			DeadRetention: opts.CleanerDeadRetention,
			Logger:        log.WithField("table", taskqueue.TableLabel(table)),
		})
		if err != nil {
			return nil, err
		}
	}

	return &TaskBackend{
		Router:   router,
		Enqueuer: publisher,
		start: func(ctx context.Context) error {
			ctx = composables.WithPool(ctx, pool)
			go func() {
				if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
					log.WithError(err).Error("taskqueue: relay stopped")
				}
			}()
			if cleaner != nil {
				go func() {
					if err := cleaner.Run(ctx); err != nil && ctx.Err() == nil {
						log.WithError(err).Error("taskqueue: cleaner stopped")
					}
				}()
			}
			return nil
		},
		stop: func(context.Context) error { return nil },
	}, nil
}

// Start runs the workers until ctx is cancelled (postgres) or Stop is called
// (memory).
func (b *TaskBackend) Start(ctx context.Context) error {
	return b.start(ctx)
}

func (b *TaskBackend) Stop(ctx context.Context) error {
	return b.stop(ctx)
}
