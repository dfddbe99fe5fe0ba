package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/cascadeprojects/crm221/internal/jobs"
	"github.com/cascadeprojects/crm221/internal/portfolio"
)

// LeaseLister returns active tenants whose lease ends within days.
type LeaseLister interface {
	UpcomingLeaseEndings(ctx context.Context, days int) ([]portfolio.Tenant, error)
}

// Reminder is one tenant flagged by a scan.
type Reminder struct {
	TenantID     string
	Name         string
	Email        string
	PropertyID   string
	UnitID       string
	LeaseEndDate string
	DaysLeft     int
}

// LeaseReminderJob logs reminders for leases ending inside the window.
type LeaseReminderJob struct {
	Leases      LeaseLister
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	DefaultDays int
	clock       func() time.Time
}

// NewLeaseReminderJob wires dependencies for the reminder handler.
func NewLeaseReminderJob(leases LeaseLister, defaultDays int, logger *slog.Logger, metrics *jobmetrics.Metrics) *LeaseReminderJob {
	return &LeaseReminderJob{
		Leases:      leases,
		Logger:      logger,
		Metrics:     metrics,
		DefaultDays: defaultDays,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes lease reminder tasks.
func (j *LeaseReminderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Leases == nil {
		return errors.New("lease reminders: handler not configured")
	}
	var payload LeaseRemindersPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.Days)
	return err
}

// Run performs one scan and returns the reminders it produced.
func (j *LeaseReminderJob) Run(ctx context.Context, days int) (reminders []Reminder, err error) {
	if days <= 0 {
		days = j.DefaultDays
	}
	tracker := j.metrics().Track(TaskLeaseReminders)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Int("days", days))
	tenants, err := j.Leases.UpcomingLeaseEndings(ctx, days)
	if err != nil {
		logger.Error("load upcoming lease endings", slog.Any("error", err))
		return nil, err
	}

	today := j.now().Truncate(24 * time.Hour)
	for _, tn := range tenants {
		r := Reminder{
			TenantID:     tn.ID,
			Name:         tn.FullName(),
			Email:        tn.Email,
			PropertyID:   tn.PropertyID,
			UnitID:       tn.UnitID,
			LeaseEndDate: tn.LeaseEndDate,
		}
		if end, perr := time.Parse(time.DateOnly, tn.LeaseEndDate); perr == nil {
			r.DaysLeft = int(end.Sub(today).Hours() / 24)
		}
		logger.Info("lease ending soon",
			slog.String("tenant_id", r.TenantID),
			slog.String("tenant", r.Name),
			slog.String("email", r.Email),
			slog.String("property_id", r.PropertyID),
			slog.String("lease_end_date", r.LeaseEndDate),
			slog.Int("days_left", r.DaysLeft),
		)
		reminders = append(reminders, r)
	}
	j.metrics().AddReminders(len(reminders))
	logger.Info("completed lease reminder scan", slog.Int("reminders", len(reminders)))
	return reminders, nil
}

func (j *LeaseReminderJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LeaseReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LeaseReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
