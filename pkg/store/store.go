package store

import (
	"github.com/Promptonauts/flowline/pkg/models"
)

// Store persists pipeline definitions and run records. Definition reads must
// be safe under concurrency; execution state is only touched by the run that
// owns it. PutDefinition with immutable set fails with ErrVersionExists when
// the (name, ref) pair is already populated, atomically with the write.
type Store interface {
	PutDefinition(name, ref string, immutable bool, def *models.PipelineDefinition) error
	GetDefinition(name, ref string) (*models.PipelineDefinition, error)
	DefinitionExists(name, ref string) (bool, error)
	ListDefinitions() ([]DefinitionInfo, error)
	ListRefs(name string) ([]string, error)

	CreateRun(run *models.RunRecord) error
	GetRun(id string) (*models.RunRecord, error)
	UpdateRun(run *models.RunRecord) error
	ListRuns(pipeline string, limit int) ([]*models.RunRecord, error)
	AppendRunLog(runID string, entry models.RunLog) error
	GetRunLogs(runID string) ([]models.RunLog, error)

	Watch() <-chan DefinitionEvent

	Migrate() error
	Close() error
}

// DefinitionInfo is a listing row: one published (name, ref) pair.
type DefinitionInfo struct {
	Name      string `json:"name"`
	Ref       string `json:"ref"`
	Immutable bool   `json:"immutable"`
}

type EventType string

const (
	EventPublished EventType = "PUBLISHED"
	EventRepointed EventType = "REPOINTED"
)

// DefinitionEvent is emitted on every publish so watchers (the scheduler,
// mainly) can react to registry changes.
type DefinitionEvent struct {
	Type       EventType
	Name       string
	Ref        string
	Definition *models.PipelineDefinition
}
