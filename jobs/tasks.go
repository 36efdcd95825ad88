package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep is the task type for the expired-session sweep.
	TaskSessionSweep = "session:sweep"
)

// SessionSweepPayload carries the parameters of one sweep run.
type SessionSweepPayload struct {
	RequestedAt time.Time `json:"requestedAt"`
}

// NewSessionSweepTask constructs an Asynq task for the session sweep.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}
