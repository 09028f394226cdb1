package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRunner scripts per-stage behavior without touching a shell.
type stubRunner struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]bool
	outputs map[string]map[string]string
	onStage map[string]func(ctx context.Context)
}

func (r *stubRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd.Stage)
	r.mu.Unlock()

	if fn := r.onStage[cmd.Stage]; fn != nil {
		fn(ctx)
	}
	if ctx.Err() != nil {
		return Result{ExitCode: -1}, ctx.Err()
	}
	if r.fail[cmd.Stage] {
		return Result{ExitCode: 1}, errors.New("exit status 1")
	}
	return Result{ExitCode: 0, Outputs: r.outputs[cmd.Stage]}, nil
}

func (r *stubRunner) called() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func threeStagePlan() *models.ExecutionPlan {
	return &models.ExecutionPlan{
		ID: "plan-1",
		Pipeline: models.PipelineDefinition{
			Name:    "demo",
			Version: "v1.0.0",
			Stages: []models.StageSpec{
				{Name: "one", Run: "true"},
				{Name: "two", Run: "true"},
				{Name: "three", Run: "true"},
			},
		},
		Bindings:  models.BindingSet{},
		CreatedAt: time.Now().UTC(),
	}
}

func newTestExecutor(t *testing.T, runner Runner) *Executor {
	t.Helper()
	return New(Options{
		Runner:              runner,
		Workdir:             t.TempDir(),
		DefaultStageTimeout: time.Minute,
	})
}

func TestRunAllStagesSucceed(t *testing.T) {
	runner := &stubRunner{outputs: map[string]map[string]string{
		"three": {"version": "1.2.3"},
	}}
	exec := newTestExecutor(t, runner)

	run, err := exec.Run(context.Background(), threeStagePlan())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSucceeded, run.Outcome)
	for _, stage := range run.Stages {
		assert.Equal(t, models.StageSucceeded, stage.Status)
	}
	assert.Equal(t, []string{"one", "two", "three"}, runner.called())
	assert.Equal(t, "1.2.3", run.Outputs["version"])
	assert.NotNil(t, run.CompletedAt)
}

func TestRunAbortPolicySkipsRemainingStages(t *testing.T) {
	runner := &stubRunner{fail: map[string]bool{"two": true}}
	exec := newTestExecutor(t, runner)

	run, err := exec.Run(context.Background(), threeStagePlan())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.Equal(t, models.StageSucceeded, run.Stages[0].Status)
	assert.Equal(t, models.StageFailed, run.Stages[1].Status)
	assert.Equal(t, models.StageSkipped, run.Stages[2].Status)

	// The skipped stage never reached the backend.
	assert.Equal(t, []string{"one", "two"}, runner.called())
}

func TestRunContinuePolicyProceedsPastFailure(t *testing.T) {
	plan := threeStagePlan()
	plan.Pipeline.Stages[1].OnFailure = models.FailContinue

	runner := &stubRunner{fail: map[string]bool{"two": true}}
	exec := newTestExecutor(t, runner)

	run, err := exec.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.Equal(t, models.StageFailed, run.Stages[1].Status)
	assert.Equal(t, models.StageSucceeded, run.Stages[2].Status)
	assert.Equal(t, []string{"one", "two", "three"}, runner.called())
}

func TestRunExternalTerminationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &stubRunner{onStage: map[string]func(context.Context){
		"two": func(context.Context) { cancel() },
	}}
	exec := newTestExecutor(t, runner)

	run, err := exec.Run(ctx, threeStagePlan())
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAborted, run.Outcome)
	assert.Equal(t, models.StageSucceeded, run.Stages[0].Status)
	assert.Equal(t, models.StageSkipped, run.Stages[1].Status)
	assert.Equal(t, models.StageSkipped, run.Stages[2].Status)
	assert.Equal(t, []string{"one", "two"}, runner.called())
}

func TestRunStageTimeoutBehavesAsFailure(t *testing.T) {
	plan := threeStagePlan()
	plan.Pipeline.Stages[1].Timeout = "20ms"

	runner := &stubRunner{onStage: map[string]func(context.Context){
		"two": func(ctx context.Context) { <-ctx.Done() },
	}}
	exec := newTestExecutor(t, runner)

	run, err := exec.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.Equal(t, models.StageFailed, run.Stages[1].Status)
	assert.Equal(t, "stage timeout exceeded", run.Stages[1].Error)
	assert.Equal(t, models.StageSkipped, run.Stages[2].Status)
}

func TestRunPreflightFailureSkipsEverything(t *testing.T) {
	plan := threeStagePlan()
	plan.Pipeline.Preflight = []models.PreflightCheck{
		{Name: "generated-sources", Path: "generated/models.py"},
	}

	runner := &stubRunner{}
	exec := newTestExecutor(t, runner)

	run, err := exec.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.Contains(t, run.Error, "generated-sources")
	for _, stage := range run.Stages {
		assert.Equal(t, models.StageSkipped, stage.Status)
	}
	assert.Empty(t, runner.called())
}

func TestRunPreflightPassesAgainstWorkspace(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "pyproject.toml"), []byte("[project]\n"), 0o644))

	plan := threeStagePlan()
	plan.Pipeline.Preflight = []models.PreflightCheck{
		{Name: "project-manifest", Path: "pyproject.toml"},
	}

	runner := &stubRunner{}
	exec := New(Options{
		Runner:              runner,
		Workdir:             workspace,
		DefaultStageTimeout: time.Minute,
	})

	run, err := exec.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeSucceeded, run.Outcome)
	assert.Equal(t, []string{"one", "two", "three"}, runner.called())
}

func TestRunPersistsRecordAndLogs(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "exec.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	defer st.Close()

	runner := &stubRunner{fail: map[string]bool{"two": true}}
	exec := New(Options{
		Store:               st,
		Runner:              runner,
		Workdir:             t.TempDir(),
		DefaultStageTimeout: time.Minute,
	})

	run, err := exec.Run(context.Background(), threeStagePlan())
	require.NoError(t, err)

	stored, err := st.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeFailed, stored.Outcome)
	assert.Equal(t, models.StageSkipped, stored.Stages[2].Status)

	logs, err := st.GetRunLogs(run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}

func TestExpandInputsOnlyDeclared(t *testing.T) {
	bindings := models.BindingSet{
		"image-name": "org/app",
		"push":       true,
		"score":      9.0,
	}
	script := `build ${{ inputs.image-name }} push=${{ inputs.push }} secret=${{ inputs.hidden }}`
	out := expandInputs(script, []string{"image-name", "push"}, bindings)

	assert.Equal(t, `build org/app push=true secret=${{ inputs.hidden }}`, out)
}

func TestStageEnvNaming(t *testing.T) {
	env := stageEnv([]string{"python-version", "run-pylint", "score"}, models.BindingSet{
		"python-version": "3.12",
		"run-pylint":     false,
		"score":          9.5,
	})
	assert.Equal(t, map[string]string{
		"INPUT_PYTHON_VERSION": "3.12",
		"INPUT_RUN_PYLINT":     "false",
		"INPUT_SCORE":          "9.5",
	}, env)
}

func TestFormatValueTrimsFloats(t *testing.T) {
	assert.Equal(t, "9", formatValue(9.0))
	assert.Equal(t, "8.5", formatValue(8.5))
	assert.Equal(t, "true", formatValue(true))
	assert.Equal(t, "x", formatValue("x"))
}
