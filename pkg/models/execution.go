package models

import "time"

// StageStatus is the per-stage state machine:
// pending -> running -> {succeeded | failed}; pending -> skipped is only
// reachable when an earlier stage aborts the pipeline.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s StageStatus) Terminal() bool {
	switch s {
	case StageSucceeded, StageFailed, StageSkipped:
		return true
	}
	return false
}

// Outcome is the overall pipeline result.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeRunning   Outcome = "running"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// StageResult records one stage's execution.
type StageResult struct {
	Name       string            `json:"name"`
	Status     StageStatus       `json:"status"`
	ExitCode   int               `json:"exitCode"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	LogRef     string            `json:"logRef,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

// RunRecord is the persisted state of one plan execution.
type RunRecord struct {
	ID          string            `json:"id"`
	PlanID      string            `json:"planId"`
	Pipeline    string            `json:"pipeline"`
	Version     string            `json:"version"`
	Outcome     Outcome           `json:"outcome"`
	Stages      []StageResult     `json:"stages"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	StartedAt   *time.Time        `json:"startedAt,omitempty"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
}

// RunLog is one captured log line for a run.
type RunLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
}
