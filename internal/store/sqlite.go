package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/orcascore/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Serializes writers to prevent SQLITE_BUSY under WAL
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		model_name TEXT,
		agent_prompt TEXT,
		system_role TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_system_role ON agents(system_role) WHERE system_role IS NOT NULL;

	CREATE TABLE IF NOT EXISTS subtasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		agent_id INTEGER,
		completed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id);

	CREATE TABLE IF NOT EXISTS agent_edit_locks (
		task_id INTEGER PRIMARY KEY,
		locked_by TEXT NOT NULL CHECK (locked_by IN ('agent', 'user')),
		locked_at INTEGER NOT NULL,
		original_content TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_agent_edit_locks_locked_at ON agent_edit_locks(locked_at);

	CREATE TABLE IF NOT EXISTS task_notes (
		task_id INTEGER PRIMARY KEY,
		content TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS project_contexts (
		project_id INTEGER PRIMARY KEY,
		context_markdown TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetSetting retrieves a setting value by key.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting '%s': %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting creates or updates a setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO settings (key, value, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, query, key, value, now, now); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// DeleteSetting removes a setting.
func (s *SQLiteStore) DeleteSetting(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	return nil
}

const agentColumns = `id, name, model_name, agent_prompt, system_role, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAgent reads an agent row. NULL columns fall back to defaults so that a
// partially populated row never fails the whole load.
func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var name, modelName, prompt, role sql.NullString
	var createdAt, updatedAt sql.NullInt64

	if err := row.Scan(&agent.ID, &name, &modelName, &prompt, &role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	agent.Name = "Unknown"
	if name.Valid {
		agent.Name = name.String
	}
	agent.ModelName = "unknown"
	if modelName.Valid {
		agent.ModelName = modelName.String
	}
	agent.AgentPrompt = prompt.String
	if role.Valid {
		agent.SystemRole = &role.String
	}
	agent.CreatedAt = time.UnixMilli(createdAt.Int64)
	agent.UpdatedAt = time.UnixMilli(updatedAt.Int64)
	return &agent, nil
}

// GetPlanningAgent retrieves the agent whose system role is "planning".
func (s *SQLiteStore) GetPlanningAgent(ctx context.Context) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE system_role = ?`

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, domain.SystemRolePlanning))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan planning agent: %w", err)
	}
	return agent, nil
}

// ListWorkerAgents returns agents without a system role ordered by id.
func (s *SQLiteStore) ListWorkerAgents(ctx context.Context) ([]domain.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents WHERE system_role IS NULL ORDER BY id`)
}

// ListAgents returns all agents ordered by id.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
}

func (s *SQLiteStore) queryAgents(ctx context.Context, query string, args ...any) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close agent rows", "error", closeErr)
		}
	}()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			slog.Warn("skipping unreadable agent row", "error", err)
			continue
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// CreateAgent inserts a new agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO agents (name, model_name, agent_prompt, system_role, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var role any
	if agent.SystemRole != nil {
		role = *agent.SystemRole
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		agent.Name, agent.ModelName, agent.AgentPrompt, role,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get agent id: %w", err)
	}
	agent.ID = id
	agent.CreatedAt = time.UnixMilli(now.UnixMilli())
	agent.UpdatedAt = agent.CreatedAt
	return nil
}

// CountAgents returns the number of agents.
func (s *SQLiteStore) CountAgents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}

// CreateSubtask inserts a new, incomplete subtask.
func (s *SQLiteStore) CreateSubtask(ctx context.Context, subtask *domain.Subtask) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO subtasks (task_id, title, description, agent_id, completed, created_at, updated_at)
	VALUES (?, ?, ?, ?, 0, ?, ?)`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		subtask.TaskID, subtask.Title, subtask.Description, subtask.AgentID,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert subtask: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get subtask id: %w", err)
	}
	subtask.ID = id
	subtask.Completed = false
	subtask.CreatedAt = time.UnixMilli(now.UnixMilli())
	subtask.UpdatedAt = subtask.CreatedAt
	return nil
}

// ListSubtasks returns the subtasks of a task.
func (s *SQLiteStore) ListSubtasks(ctx context.Context, taskID int64) ([]domain.Subtask, error) {
	query := `
		SELECT id, task_id, title, description, agent_id, completed, created_at, updated_at
		FROM subtasks WHERE task_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query subtasks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close subtask rows", "error", closeErr)
		}
	}()

	var subtasks []domain.Subtask
	for rows.Next() {
		var st domain.Subtask
		var description sql.NullString
		var agentID sql.NullInt64
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&st.ID, &st.TaskID, &st.Title, &description, &agentID,
			&st.Completed, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan subtask row: %w", err)
		}

		st.Description = description.String
		st.AgentID = agentID.Int64
		st.CreatedAt = time.UnixMilli(createdAt)
		st.UpdatedAt = time.UnixMilli(updatedAt)
		subtasks = append(subtasks, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtasks: %w", err)
	}
	return subtasks, nil
}

// InsertLock inserts an edit lock unless the task is already locked.
// Uniqueness is enforced by the task_id primary key, so concurrent
// acquirers cannot both succeed.
func (s *SQLiteStore) InsertLock(ctx context.Context, lock *domain.EditLock) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO agent_edit_locks (task_id, locked_by, locked_at, original_content)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(task_id) DO NOTHING`

	var original any
	if lock.OriginalContent != nil {
		original = *lock.OriginalContent
	}

	result, err := s.db.ExecContext(ctx, query, lock.TaskID, lock.LockedBy, lock.LockedAt.UnixMilli(), original)
	if err != nil {
		return false, fmt.Errorf("insert lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows == 1, nil
}

// DeleteLock removes the lock for a task.
func (s *SQLiteStore) DeleteLock(ctx context.Context, taskID int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_edit_locks WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

// GetLock retrieves the lock for a task.
func (s *SQLiteStore) GetLock(ctx context.Context, taskID int64) (*domain.EditLock, error) {
	query := `
		SELECT task_id, locked_by, locked_at, original_content
		FROM agent_edit_locks WHERE task_id = ?`

	var lock domain.EditLock
	var lockedAt int64
	var original sql.NullString

	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&lock.TaskID, &lock.LockedBy, &lockedAt, &original)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lock: %w", err)
	}

	lock.LockedAt = time.UnixMilli(lockedAt)
	if original.Valid {
		lock.OriginalContent = &original.String
	}
	return &lock, nil
}

// DeleteAllLocks removes every edit lock.
func (s *SQLiteStore) DeleteAllLocks(ctx context.Context) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM agent_edit_locks`)
	if err != nil {
		return 0, fmt.Errorf("delete all locks: %w", err)
	}
	return result.RowsAffected()
}

// DeleteLocksBefore removes locks acquired before cutoff.
func (s *SQLiteStore) DeleteLocksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM agent_edit_locks WHERE locked_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete stale locks: %w", err)
	}
	return result.RowsAffected()
}

// GetTaskNote retrieves the notes for a task.
func (s *SQLiteStore) GetTaskNote(ctx context.Context, taskID int64) (*domain.TaskNote, error) {
	query := `SELECT task_id, content, created_at, updated_at FROM task_notes WHERE task_id = ?`

	var note domain.TaskNote
	var content sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&note.TaskID, &content, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task note: %w", err)
	}

	note.Content = content.String
	note.CreatedAt = time.UnixMilli(createdAt)
	note.UpdatedAt = time.UnixMilli(updatedAt)
	return &note, nil
}

// UpsertTaskNote creates or updates the notes for a task.
func (s *SQLiteStore) UpsertTaskNote(ctx context.Context, taskID int64, content string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO task_notes (task_id, content, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(task_id) DO UPDATE SET
		content = excluded.content,
		updated_at = excluded.updated_at`

	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, query, taskID, content, now, now); err != nil {
		return fmt.Errorf("upsert task note: %w", err)
	}
	return nil
}

// GetProjectContext retrieves the context markdown for a project.
func (s *SQLiteStore) GetProjectContext(ctx context.Context, projectID int64) (*domain.ProjectContext, error) {
	query := `SELECT project_id, context_markdown, created_at, updated_at FROM project_contexts WHERE project_id = ?`

	var pc domain.ProjectContext
	var content sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, projectID).Scan(&pc.ProjectID, &content, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project context: %w", err)
	}

	pc.Content = content.String
	pc.CreatedAt = time.UnixMilli(createdAt)
	pc.UpdatedAt = time.UnixMilli(updatedAt)
	return &pc, nil
}

// UpsertProjectContext creates or replaces the context markdown for a project.
func (s *SQLiteStore) UpsertProjectContext(ctx context.Context, projectID int64, content string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO project_contexts (project_id, context_markdown, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(project_id) DO UPDATE SET
		context_markdown = excluded.context_markdown,
		updated_at = excluded.updated_at`

	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, query, projectID, content, now, now); err != nil {
		return fmt.Errorf("upsert project context: %w", err)
	}
	return nil
}
