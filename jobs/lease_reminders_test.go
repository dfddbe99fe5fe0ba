package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/cascadeprojects/crm221/internal/jobs"
	"github.com/cascadeprojects/crm221/internal/portfolio"
)

type fakeLeases struct {
	tenants []portfolio.Tenant
	err     error
	days    []int
}

func (f *fakeLeases) UpcomingLeaseEndings(_ context.Context, days int) ([]portfolio.Tenant, error) {
	f.days = append(f.days, days)
	return f.tenants, f.err
}

func newTestJob(leases LeaseLister) *LeaseReminderJob {
	job := NewLeaseReminderJob(leases, 90, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC) }
	return job
}

func TestLeaseReminderRunBuildsReminders(t *testing.T) {
	leases := &fakeLeases{tenants: []portfolio.Tenant{
		{ID: "tenant-003", FirstName: "Mike", LastName: "Chen", Email: "mike.chen@example.com", PropertyID: "221-bowery", UnitID: "u-221-7c", LeaseEndDate: "2026-11-03"},
		{ID: "tenant-009", FirstName: "No", LastName: "Date", LeaseEndDate: "soon"},
	}}
	job := newTestJob(leases)

	reminders, err := job.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{90}, leases.days)
	require.Len(t, reminders, 2)
	assert.Equal(t, "Mike Chen", reminders[0].Name)
	assert.Equal(t, 20, reminders[0].DaysLeft)
	assert.Zero(t, reminders[1].DaysLeft)
}

func TestLeaseReminderHandleUsesPayloadWindow(t *testing.T) {
	leases := &fakeLeases{}
	job := newTestJob(leases)

	task, err := NewLeaseRemindersTask(30)
	require.NoError(t, err)
	assert.Equal(t, TaskLeaseReminders, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []int{30}, leases.days)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskLeaseReminders, nil)))
	assert.Equal(t, []int{30, 90}, leases.days)
}

func TestLeaseReminderHandleRejectsBadPayload(t *testing.T) {
	job := newTestJob(&fakeLeases{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskLeaseReminders, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLeaseReminderPropagatesListFailure(t *testing.T) {
	boom := errors.New("store down")
	job := newTestJob(&fakeLeases{err: boom})
	_, err := job.Run(context.Background(), 10)
	assert.ErrorIs(t, err, boom)

	var nilJob *LeaseReminderJob
	assert.Error(t, nilJob.Handle(context.Background(), asynq.NewTask(TaskLeaseReminders, nil)))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, status: http.StatusOK, pending: 4},
		{name: "redis down", inspector: fakeInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, nil).MountRoutes)
			res := httptest.NewRecorder()
			r.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, res.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body struct {
				Queue   string `json:"queue"`
				Pending int    `json:"pending"`
			}
			require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
			assert.Equal(t, QueueDefault, body.Queue)
			assert.Equal(t, tc.pending, body.Pending)
		})
	}
}
