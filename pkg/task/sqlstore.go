package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ordermesh/ordermesh/pkg/a2a"
)

// SQLStore persists tasks in SQLite. Message history and artifacts are
// stored as JSON columns; the state column is kept flat so transitions can
// be checked in SQL.
type SQLStore struct {
	db *sql.DB

	// serializes Transition's read-check-write; sqlite is single-writer
	// anyway, this keeps the check and the update one critical section.
	mu sync.Mutex
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	context_id      TEXT NOT NULL DEFAULT '',
	state           TEXT NOT NULL,
	state_timestamp TIMESTAMP NOT NULL,
	reason          TEXT NOT NULL DEFAULT '',
	history         TEXT NOT NULL DEFAULT '[]',
	artifacts       TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_context ON tasks(context_id);
`

// NewSQLStore opens (creating if needed) a SQLite-backed store at path.
// Use ":memory:" for an ephemeral database.
func NewSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening task database: %w", err)
	}
	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing task schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Create(ctx context.Context, contextID string) (*a2a.Task, error) {
	t := newTask(contextID)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, context_id, state, state_timestamp, reason, history, artifacts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', '[]', '[]', ?, ?)`,
		t.ID, t.ContextID, string(t.Status.State), t.Status.Timestamp, now, now)
	if err != nil {
		return nil, fmt.Errorf("inserting task: %w", err)
	}
	return t, nil
}

func (s *SQLStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	return s.get(ctx, taskID)
}

func (s *SQLStore) get(ctx context.Context, taskID string) (*a2a.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, context_id, state, state_timestamp, reason, history, artifacts
		 FROM tasks WHERE id = ?`, taskID)

	var (
		t                  a2a.Task
		state, reason      string
		history, artifacts []byte
	)
	err := row.Scan(&t.ID, &t.ContextID, &state, &t.Status.Timestamp, &reason, &history, &artifacts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading task: %w", err)
	}

	t.Status.State = a2a.TaskState(state)
	t.Status.Reason = reason
	if err := json.Unmarshal(history, &t.History); err != nil {
		return nil, fmt.Errorf("decoding task history: %w", err)
	}
	if err := json.Unmarshal(artifacts, &t.Artifacts); err != nil {
		return nil, fmt.Errorf("decoding task artifacts: %w", err)
	}
	return &t, nil
}

func (s *SQLStore) Transition(ctx context.Context, taskID string, next a2a.TaskState, reason string, mutate func(*a2a.Task)) (*a2a.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !t.Status.State.CanTransitionTo(next) {
		return nil, ErrTerminal
	}

	t.Status = a2a.TaskStatus{
		State:     next,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}
	if mutate != nil {
		mutate(t)
	}
	if err := s.save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, taskID string, msg a2a.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(ctx, taskID)
	if err != nil {
		return err
	}
	t.History = append(t.History, msg)
	return s.save(ctx, t)
}

func (s *SQLStore) AppendArtifact(ctx context.Context, taskID string, art a2a.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(ctx, taskID)
	if err != nil {
		return err
	}
	art.Index = len(t.Artifacts)
	t.Artifacts = append(t.Artifacts, art)
	return s.save(ctx, t)
}

func (s *SQLStore) save(ctx context.Context, t *a2a.Task) error {
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("encoding task history: %w", err)
	}
	artifacts, err := json.Marshal(t.Artifacts)
	if err != nil {
		return fmt.Errorf("encoding task artifacts: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks
		 SET state = ?, state_timestamp = ?, reason = ?, history = ?, artifacts = ?, updated_at = ?
		 WHERE id = ?`,
		string(t.Status.State), t.Status.Timestamp, t.Status.Reason,
		string(history), string(artifacts), time.Now().UTC(), t.ID)
	if err != nil {
		return fmt.Errorf("saving task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM tasks WHERE context_id = ? ORDER BY created_at`, contextID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tasks := make([]*a2a.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
