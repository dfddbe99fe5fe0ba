package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLeaseReminders scans tenants whose lease ends soon.
	TaskLeaseReminders = "leases:reminders"
)

// LeaseRemindersPayload configures a lease reminder scan. Zero Days uses the
// job's default window.
type LeaseRemindersPayload struct {
	Days int `json:"days,omitempty"`
}

// NewLeaseRemindersTask constructs an Asynq task.
func NewLeaseRemindersTask(days int) (*asynq.Task, error) {
	data, err := json.Marshal(LeaseRemindersPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeaseReminders, data), nil
}
