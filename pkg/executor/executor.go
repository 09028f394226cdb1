// Package executor runs execution plans stage by stage against a command
// backend, enforcing ordering, failure policy, timeouts and cancellation.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/observability"
	"github.com/Promptonauts/flowline/pkg/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var inputRE = regexp.MustCompile(`\$\{\{\s*inputs\.([A-Za-z0-9_.-]+)\s*\}\}`)

type Options struct {
	Store   store.Store // optional; runs are not persisted when nil
	Runner  Runner
	Logger  *zap.Logger
	Metrics *observability.MetricsRegistry
	// Workdir is the caller workspace stages execute in; the deployment
	// materializes the checkout there. Preflight checks with relative paths
	// resolve against it. Per-run logs and output files live under
	// Workdir/.flowline/<run-id>.
	Workdir string
	// DefaultStageTimeout applies when neither the stage nor the definition
	// sets one.
	DefaultStageTimeout time.Duration
}

type Executor struct {
	store   store.Store
	runner  Runner
	logger  *zap.Logger
	metrics *observability.MetricsRegistry
	workdir string
	timeout time.Duration
}

func New(opts Options) *Executor {
	e := &Executor{
		store:   opts.Store,
		runner:  opts.Runner,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		workdir: opts.Workdir,
		timeout: opts.DefaultStageTimeout,
	}
	if e.runner == nil {
		e.runner = NewLocalRunner()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = observability.NewMetricsRegistry()
	}
	if e.workdir == "" {
		e.workdir = filepath.Join(os.TempDir(), "flowline")
	}
	if e.timeout <= 0 {
		e.timeout = 10 * time.Minute
	}
	return e
}

// Run executes the plan's stages strictly in declared order. A failing stage
// with the abort-pipeline policy skips everything after it; continue records
// the failure and proceeds. Cancelling ctx terminates the run: every stage
// that has not reached a terminal state is marked skipped and the overall
// outcome is aborted.
func (e *Executor) Run(ctx context.Context, plan *models.ExecutionPlan) (*models.RunRecord, error) {
	return e.RunWithID(ctx, uuid.New().String(), plan)
}

// RunWithID is Run with a caller-chosen run ID, so callers that dispatch runs
// asynchronously can hand out the ID before the run completes.
func (e *Executor) RunWithID(ctx context.Context, id string, plan *models.ExecutionPlan) (*models.RunRecord, error) {
	now := time.Now().UTC()
	run := &models.RunRecord{
		ID:        id,
		PlanID:    plan.ID,
		Pipeline:  plan.Pipeline.Name,
		Version:   plan.Pipeline.Version,
		Outcome:   models.OutcomeRunning,
		Stages:    make([]models.StageResult, len(plan.Pipeline.Stages)),
		Outputs:   make(map[string]string),
		StartedAt: &now,
	}
	for i, stage := range plan.Pipeline.Stages {
		run.Stages[i] = models.StageResult{Name: stage.Name, Status: models.StagePending}
	}
	e.persistNew(run)
	e.metrics.Counter("runs_started").Inc()
	e.metrics.Gauge("runs_active").Inc()
	defer e.metrics.Gauge("runs_active").Dec()

	workspace := e.workdir
	scratchDir := filepath.Join(workspace, ".flowline", run.ID)
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		for i := range run.Stages {
			run.Stages[i].Status = models.StageSkipped
		}
		run.Error = fmt.Sprintf("create run scratch dir: %v", err)
		e.finish(run, models.OutcomeFailed)
		return run, nil
	}

	if err := e.preflight(plan, workspace); err != nil {
		for i := range run.Stages {
			run.Stages[i].Status = models.StageSkipped
		}
		run.Error = err.Error()
		e.finish(run, models.OutcomeFailed)
		return run, nil
	}

	failed := false
	aborted := false
	terminated := false

	for i, stage := range plan.Pipeline.Stages {
		if terminated || ctx.Err() != nil {
			terminated = true
			run.Stages[i].Status = models.StageSkipped
			continue
		}
		if aborted {
			run.Stages[i].Status = models.StageSkipped
			e.log(run, stage.Name, "warn", "stage skipped: earlier stage aborted the pipeline")
			continue
		}

		started := time.Now().UTC()
		run.Stages[i].Status = models.StageRunning
		run.Stages[i].StartedAt = &started
		e.persist(run)
		e.log(run, stage.Name, "info", "stage started")

		cmd := Command{
			Stage:      stage.Name,
			Script:     expandInputs(stage.Run, stage.Inputs, plan.Bindings),
			Env:        stageEnv(stage.Inputs, plan.Bindings),
			Workdir:    workspace,
			LogPath:    filepath.Join(scratchDir, stage.Name+".log"),
			OutputPath: filepath.Join(scratchDir, stage.Name+".out"),
			Declared:   stage.Outputs,
		}
		run.Stages[i].LogRef = cmd.LogPath

		stageCtx, cancel := context.WithTimeout(ctx, e.stageTimeout(plan, stage))
		res, runErr := e.runner.Run(stageCtx, cmd)
		cancel()

		finished := time.Now().UTC()
		run.Stages[i].FinishedAt = &finished
		run.Stages[i].ExitCode = res.ExitCode
		e.metrics.Histogram("stage_duration_seconds").ObserveDuration(finished.Sub(started))

		if ctx.Err() != nil {
			// External termination while the stage was in flight: the stage
			// never reached a terminal state on its own.
			run.Stages[i].Status = models.StageSkipped
			run.Stages[i].Error = ctx.Err().Error()
			terminated = true
			e.log(run, stage.Name, "warn", "run terminated while stage was in flight")
			continue
		}

		if runErr != nil {
			run.Stages[i].Status = models.StageFailed
			run.Stages[i].Error = stageError(runErr, stageCtx)
			failed = true
			if stage.Policy() == models.FailAbort {
				aborted = true
			}
			e.metrics.Counter("stages_failed").Inc()
			e.log(run, stage.Name, "error", "stage failed: "+run.Stages[i].Error)
			e.persist(run)
			continue
		}

		run.Stages[i].Status = models.StageSucceeded
		run.Stages[i].Outputs = res.Outputs
		for k, v := range res.Outputs {
			run.Outputs[k] = v
		}
		e.metrics.Counter("stages_succeeded").Inc()
		e.log(run, stage.Name, "info", "stage succeeded")
		e.persist(run)
	}

	switch {
	case terminated:
		e.finish(run, models.OutcomeAborted)
	case failed:
		e.finish(run, models.OutcomeFailed)
	default:
		e.finish(run, models.OutcomeSucceeded)
	}
	return run, nil
}

func (e *Executor) stageTimeout(plan *models.ExecutionPlan, stage models.StageSpec) time.Duration {
	if stage.Timeout != "" {
		if d, err := time.ParseDuration(stage.Timeout); err == nil {
			return d
		}
	}
	if plan.Pipeline.DefaultTimeout != "" {
		if d, err := time.ParseDuration(plan.Pipeline.DefaultTimeout); err == nil {
			return d
		}
	}
	return e.timeout
}

// preflight resolves relative check paths against the workspace root, which
// exists before any stage runs.
func (e *Executor) preflight(plan *models.ExecutionPlan, workspace string) error {
	for _, check := range plan.Pipeline.Preflight {
		path := check.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(workspace, path)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("preflight check %q: %s does not exist", check.Name, check.Path)
		}
	}
	return nil
}

func (e *Executor) finish(run *models.RunRecord, outcome models.Outcome) {
	run.Outcome = outcome
	now := time.Now().UTC()
	run.CompletedAt = &now
	e.metrics.Counter("runs_" + string(outcome)).Inc()
	e.persist(run)
	e.logger.Info("run finished",
		zap.String("run", run.ID),
		zap.String("pipeline", run.Pipeline),
		zap.String("outcome", string(outcome)))
}

// Persistence is best effort: a broken store never takes a running pipeline
// down with it.
func (e *Executor) persistNew(run *models.RunRecord) {
	if e.store == nil {
		return
	}
	if err := e.store.CreateRun(run); err != nil {
		e.logger.Warn("cannot create run record", zap.String("run", run.ID), zap.Error(err))
	}
}

func (e *Executor) persist(run *models.RunRecord) {
	if e.store == nil {
		return
	}
	if err := e.store.UpdateRun(run); err != nil {
		e.logger.Warn("cannot update run record", zap.String("run", run.ID), zap.Error(err))
	}
}

func (e *Executor) log(run *models.RunRecord, stage, level, msg string) {
	e.logger.Info(msg, zap.String("run", run.ID), zap.String("stage", stage))
	if e.store == nil {
		return
	}
	entry := models.RunLog{Timestamp: time.Now().UTC(), Level: level, Message: msg, Stage: stage}
	if err := e.store.AppendRunLog(run.ID, entry); err != nil {
		e.logger.Warn("cannot append run log", zap.String("run", run.ID), zap.Error(err))
	}
}

func stageError(err error, stageCtx context.Context) string {
	if stageCtx.Err() == context.DeadlineExceeded {
		return "stage timeout exceeded"
	}
	return err.Error()
}

// expandInputs substitutes ${{ inputs.name }} placeholders for the stage's
// declared inputs. Undeclared placeholders are left alone so they show up
// verbatim in the stage log.
func expandInputs(script string, declared []string, bindings models.BindingSet) string {
	allowed := make(map[string]bool, len(declared))
	for _, name := range declared {
		allowed[name] = true
	}
	return inputRE.ReplaceAllStringFunc(script, func(m string) string {
		name := inputRE.FindStringSubmatch(m)[1]
		if !allowed[name] {
			return m
		}
		v, ok := bindings[name]
		if !ok {
			return m
		}
		return formatValue(v)
	})
}

// stageEnv exports each declared input as INPUT_<NAME>.
func stageEnv(declared []string, bindings models.BindingSet) map[string]string {
	env := make(map[string]string, len(declared))
	for _, name := range declared {
		v, ok := bindings[name]
		if !ok {
			continue
		}
		key := "INPUT_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		env[key] = formatValue(v)
	}
	return env
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
