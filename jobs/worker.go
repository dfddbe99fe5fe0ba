package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cascadeprojects/crm221/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const defaultConcurrency = 2

// CronRegistration schedules Task on a cron Spec.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig configures NewWorker. Handlers maps task types to handlers;
// nil entries are ignored.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    map[string]asynq.Handler
	Cron        []CronRegistration
}

// Worker processes queued tasks and, when cron entries are configured, runs
// the scheduler that enqueues them.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker builds a Worker. An invalid cron spec fails construction.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	mux := asynq.NewServeMux()
	for taskType, h := range cfg.Handlers {
		if taskType == "" || h == nil {
			continue
		}
		mux.Handle(taskType, h)
	}

	w := &Worker{
		server: asynq.NewServer(cfg.RedisOpts, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{QueueDefault: 1},
			Logger:      newAsynqLogger(logger),
		}),
		mux:    mux,
		logger: logger,
	}

	if len(cfg.Cron) == 0 {
		return w, nil
	}
	w.scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   newAsynqLogger(logger),
		EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
			logger.Error("scheduled enqueue failed", slog.String("task", task.Type()), slog.Any("error", err))
		},
	})
	for _, entry := range cfg.Cron {
		if entry.Spec == "" || entry.Task == nil {
			continue
		}
		if _, err := w.scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
			return nil, fmt.Errorf("jobs: register %s on %q: %w", entry.Task.Type(), entry.Spec, err)
		}
	}
	return w, nil
}

// Run starts the server and scheduler and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
	}
	w.logger.Info("worker started", slog.Bool("scheduler", w.scheduler != nil))

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

// Client enqueues tasks.
type Client struct {
	client *asynq.Client
}

// NewClient connects a Client to Redis.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueLeaseReminders queues one lease reminder scan over days.
func (c *Client) EnqueueLeaseReminders(ctx context.Context, days int) (*asynq.TaskInfo, error) {
	task, err := NewLeaseRemindersTask(days)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
