package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/tagstone/tagstone/internal/jobs"
)

type fakeSweepStore struct {
	swept int64
	err   error
	calls int
}

func (f *fakeSweepStore) SweepExpiredSessions(context.Context) (int64, error) {
	f.calls++
	return f.swept, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionSweepPayloadRoundTrip(t *testing.T) {
	requested := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task, err := NewSessionSweepTask(SessionSweepPayload{RequestedAt: requested})
	require.NoError(t, err)
	assert.Equal(t, TaskSessionSweep, task.Type())

	var decoded SessionSweepPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.True(t, decoded.RequestedAt.Equal(requested))
}

func TestSessionSweepJobHandle(t *testing.T) {
	store := &fakeSweepStore{swept: 3}
	job := NewSessionSweepJob(store, discardLogger(), nil)

	task, err := NewSessionSweepTask(SessionSweepPayload{RequestedAt: time.Now().UTC()})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, store.calls)
}

func TestSessionSweepJobHandlePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := &fakeSweepStore{err: boom}
	job := NewSessionSweepJob(store, discardLogger(), nil)

	task, err := NewSessionSweepTask(SessionSweepPayload{})
	require.NoError(t, err)

	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestSessionSweepJobSkipsMalformedPayload(t *testing.T) {
	store := &fakeSweepStore{}
	job := NewSessionSweepJob(store, discardLogger(), nil)

	task := asynq.NewTask(TaskSessionSweep, []byte("{not json"))
	assert.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
	assert.Zero(t, store.calls, "a malformed payload never reaches the store")
}

func TestSessionSweepJobTracksMetrics(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	store := &fakeSweepStore{swept: 2}
	job := NewSessionSweepJob(store, discardLogger(), metrics)

	task, err := NewSessionSweepTask(SessionSweepPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}
