package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Promptonauts/flowline/pkg/executor"
	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/registry"
	"github.com/Promptonauts/flowline/pkg/resolver"
	"github.com/Promptonauts/flowline/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, cmd executor.Command) (executor.Result, error) {
	return executor.Result{ExitCode: 0}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *registry.Registry, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st)
	res := resolver.New(reg)
	exec := executor.New(executor.Options{
		Store:               st,
		Runner:              noopRunner{},
		Workdir:             t.TempDir(),
		DefaultStageTimeout: time.Minute,
	})
	return New(reg, res, exec, nil), reg, st
}

func scheduledDefinition(schedule string) *models.PipelineDefinition {
	return &models.PipelineDefinition{
		Name:     "nightly",
		Schedule: schedule,
		Stages:   []models.StageSpec{{Name: "sync", Run: "true"}},
	}
}

func TestRescheduleAddsRemovesAndRejects(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	s.reschedule(ctx, "nightly", "main", scheduledDefinition("@hourly"))
	assert.Len(t, s.entries, 1)

	// A publish without a schedule clears the entry.
	s.reschedule(ctx, "nightly", "main", scheduledDefinition(""))
	assert.Empty(t, s.entries)

	// Invalid cron specs are logged and ignored.
	s.reschedule(ctx, "nightly", "main", scheduledDefinition("every full moon"))
	assert.Empty(t, s.entries)
}

func TestDispatchRunsPipeline(t *testing.T) {
	s, reg, st := newTestScheduler(t)
	require.NoError(t, reg.Publish(scheduledDefinition("@hourly"), "main"))

	s.dispatch(context.Background(), "nightly", "main")

	runs, err := st.ListRuns("nightly", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.OutcomeSucceeded, runs[0].Outcome)
}

func TestDispatchWithUnresolvablePlanIsSafe(t *testing.T) {
	s, _, st := newTestScheduler(t)

	// Nothing published: dispatch must not panic or record a run.
	s.dispatch(context.Background(), "ghost", "main")

	runs, err := st.ListRuns("ghost", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
