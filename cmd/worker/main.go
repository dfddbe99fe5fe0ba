package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cascadeprojects/crm221/internal/app"
	jobmetrics "github.com/cascadeprojects/crm221/internal/jobs"
	"github.com/cascadeprojects/crm221/internal/portfolio"
	"github.com/cascadeprojects/crm221/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	enqueue := flag.Bool("enqueue", false, "enqueue one lease reminder scan and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	if *enqueue {
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		info, err := client.EnqueueLeaseReminders(ctx, cfg.LeaseReminderDays)
		if err != nil {
			logger.Error("enqueue lease reminders", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("enqueued lease reminders", slog.String("task_id", info.ID), slog.String("queue", info.Queue))
		return
	}

	data, err := app.OpenDataLayer(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("open data layer", slog.Any("error", err))
		os.Exit(1)
	}
	defer data.Close()

	leases := portfolio.NewService(data.Store, cfg.LeaseReminderDays, logger)
	reminderJob := jobs.NewLeaseReminderJob(leases, cfg.LeaseReminderDays, logger, jobmetrics.NewMetrics(nil))

	reminderTask, err := jobs.NewLeaseRemindersTask(cfg.LeaseReminderDays)
	if err != nil {
		logger.Error("build lease reminder task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: map[string]asynq.Handler{
			jobs.TaskLeaseReminders: asynq.HandlerFunc(reminderJob.Handle),
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LeaseReminderCron, Task: reminderTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
