package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tagstone/tagstone/internal/jobs"
)

// SweepStore is the persistence surface the sweep job needs.
type SweepStore interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

// SessionSweepJob nulls the tokens of expired sessions in bulk, keeping the
// request path free of stale-token cleanup beyond its bounded inline sweep.
type SessionSweepJob struct {
	store   SweepStore
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSessionSweepJob constructs the sweep job.
func NewSessionSweepJob(store SweepStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{store: store, logger: logger, metrics: metrics}
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics.Track("session_sweep")
	swept, err := j.store.SweepExpiredSessions(ctx)
	if err != nil {
		j.logger.Error("session sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddSweptSessions(swept)
	if swept > 0 {
		j.logger.Info("session sweep completed", slog.Int64("swept", swept))
	}
	return tracker.End(nil)
}
