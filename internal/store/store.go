// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/orcascore/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SettingsStore is a last-write-wins key/value store for user preferences.
type SettingsStore interface {
	// GetSetting returns the value for key, or ErrNotFound.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting creates or replaces the value for key in a single statement.
	SetSetting(ctx context.Context, key, value string) error

	// DeleteSetting removes key. Deleting a missing key is not an error.
	DeleteSetting(ctx context.Context, key string) error
}

// AgentStore persists agent definitions.
type AgentStore interface {
	// GetPlanningAgent returns the agent with the planning system role, or ErrNotFound.
	GetPlanningAgent(ctx context.Context) (*domain.Agent, error)

	// ListWorkerAgents returns agents without a system role, ordered by id.
	ListWorkerAgents(ctx context.Context) ([]domain.Agent, error)

	// ListAgents returns every agent ordered by id.
	ListAgents(ctx context.Context) ([]domain.Agent, error)

	// CreateAgent inserts an agent and sets its ID.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// CountAgents returns the number of stored agents.
	CountAgents(ctx context.Context) (int64, error)
}

// SubtaskStore persists subtasks.
type SubtaskStore interface {
	// CreateSubtask inserts a subtask and sets its ID and timestamps.
	CreateSubtask(ctx context.Context, subtask *domain.Subtask) error

	// ListSubtasks returns the subtasks of a task ordered by id.
	ListSubtasks(ctx context.Context, taskID int64) ([]domain.Subtask, error)
}

// LockStore persists edit locks. Every method is a single statement.
type LockStore interface {
	// InsertLock inserts the lock unless one already exists for the task.
	// It returns true if the row was inserted.
	InsertLock(ctx context.Context, lock *domain.EditLock) (bool, error)

	// DeleteLock removes the lock for a task, if any.
	DeleteLock(ctx context.Context, taskID int64) error

	// GetLock returns the lock for a task, or ErrNotFound.
	GetLock(ctx context.Context, taskID int64) (*domain.EditLock, error)

	// DeleteAllLocks removes every lock and returns the number removed.
	DeleteAllLocks(ctx context.Context) (int64, error)

	// DeleteLocksBefore removes locks acquired strictly before cutoff.
	DeleteLocksBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotesStore persists per-task shared notes.
type NotesStore interface {
	// GetTaskNote returns the note for a task, or ErrNotFound.
	GetTaskNote(ctx context.Context, taskID int64) (*domain.TaskNote, error)

	// UpsertTaskNote creates or replaces the note content for a task.
	UpsertTaskNote(ctx context.Context, taskID int64, content string) error
}

// ContextStore persists per-project context markdown.
type ContextStore interface {
	// GetProjectContext returns the context for a project, or ErrNotFound.
	GetProjectContext(ctx context.Context, projectID int64) (*domain.ProjectContext, error)

	// UpsertProjectContext creates or replaces the context markdown for a project.
	UpsertProjectContext(ctx context.Context, projectID int64, content string) error
}

// Repository aggregates every store backed by one database handle.
type Repository interface {
	SettingsStore
	AgentStore
	SubtaskStore
	LockStore
	NotesStore
	ContextStore

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
