package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db       *sql.DB
	mu       sync.RWMutex
	watchers []chan DefinitionEvent
	watchMu  sync.RWMutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS definitions (
		name TEXT NOT NULL,
		ref TEXT NOT NULL,
		immutable INTEGER NOT NULL DEFAULT 0,
		data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (name, ref)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		pipeline TEXT NOT NULL,
		version TEXT DEFAULT '',
		outcome TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		stage TEXT DEFAULT '',
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline);
	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutDefinition(name, ref string, immutable bool, def *models.PipelineDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existed, err := s.definitionExistsUnlocked(name, ref)
	if err != nil {
		return err
	}
	// The conflict decision must live inside the write lock: two concurrent
	// publishes of the same tag would otherwise both pass a caller-side check
	// and the second would overwrite the first.
	if existed && immutable {
		return fmt.Errorf("pipeline %q ref %q: %w", name, ref, models.ErrVersionExists)
	}

	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	imm := 0
	if immutable {
		imm = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO definitions (name, ref, immutable, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, ref) DO UPDATE SET
			data = excluded.data,
			immutable = excluded.immutable,
			updated_at = excluded.updated_at
	`, name, ref, imm, string(data), now, now)
	if err != nil {
		return fmt.Errorf("upsert definition: %w", err)
	}

	evtType := EventPublished
	if existed {
		evtType = EventRepointed
	}
	s.emit(DefinitionEvent{Type: evtType, Name: name, Ref: ref, Definition: def})
	return nil
}

func (s *SQLiteStore) GetDefinition(name, ref string) (*models.PipelineDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(
		"SELECT data FROM definitions WHERE name = ? AND ref = ?",
		name, ref,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Name: name, Ref: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("query definition: %w", err)
	}

	var def models.PipelineDefinition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return &def, nil
}

func (s *SQLiteStore) DefinitionExists(name, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.definitionExistsUnlocked(name, ref)
}

func (s *SQLiteStore) definitionExistsUnlocked(name, ref string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM definitions WHERE name = ? AND ref = ?",
		name, ref,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query definition: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ListDefinitions() ([]DefinitionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT name, ref, immutable FROM definitions ORDER BY name, ref")
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var results []DefinitionInfo
	for rows.Next() {
		var info DefinitionInfo
		var imm int
		if err := rows.Scan(&info.Name, &info.Ref, &imm); err != nil {
			return nil, err
		}
		info.Immutable = imm != 0
		results = append(results, info)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) ListRefs(name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT ref FROM definitions WHERE name = ? ORDER BY ref", name)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *SQLiteStore) CreateRun(run *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, pipeline, version, outcome, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Pipeline, run.Version, string(run.Outcome), string(data), now, now)
	return err
}

func (s *SQLiteStore) GetRun(id string) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow("SELECT data FROM runs WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	var run models.RunRecord
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStore) UpdateRun(run *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		UPDATE runs SET outcome = ?, data = ?, updated_at = ? WHERE id = ?
	`, string(run.Outcome), string(data), run.UpdatedAt, run.ID)
	return err
}

func (s *SQLiteStore) ListRuns(pipeline string, limit int) ([]*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT data FROM runs"
	args := []interface{}{}
	if pipeline != "" {
		query += " WHERE pipeline = ?"
		args = append(args, pipeline)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.RunRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var run models.RunRecord
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil, err
		}
		results = append(results, &run)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) AppendRunLog(runID string, entry models.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, message, stage)
		VALUES (?, ?, ?, ?, ?)
	`, runID, entry.Timestamp, entry.Level, entry.Message, entry.Stage)
	return err
}

func (s *SQLiteStore) GetRunLogs(runID string) ([]models.RunLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT timestamp, level, message, stage FROM run_logs WHERE run_id = ? ORDER BY id ASC",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var l models.RunLog
		if err := rows.Scan(&l.Timestamp, &l.Level, &l.Message, &l.Stage); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Watch support

func (s *SQLiteStore) Watch() <-chan DefinitionEvent {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	ch := make(chan DefinitionEvent, 100)
	s.watchers = append(s.watchers, ch)
	return ch
}

func (s *SQLiteStore) emit(event DefinitionEvent) {
	s.watchMu.RLock()
	defer s.watchMu.RUnlock()

	for _, ch := range s.watchers {
		select {
		case ch <- event:
		default:
			// Drop event if channel is full — non-blocking
		}
	}
}
