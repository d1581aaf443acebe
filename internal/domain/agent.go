// Package domain contains core domain types for the orcascore backend.
package domain

import (
	"time"
)

// SystemRolePlanning marks the single agent that orchestrates task planning.
const SystemRolePlanning = "planning"

// Agent is a configured persona that subtasks can be assigned to.
// Agents without a system role are assignable workers.
type Agent struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ModelName   string    `json:"model_name"`
	AgentPrompt string    `json:"agent_prompt"`
	SystemRole  *string   `json:"system_role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsWorker returns true if the agent can be assigned subtasks.
func (a *Agent) IsWorker() bool {
	return a.SystemRole == nil
}

// Subtask is a unit of work under a task, created by the planning agent.
type Subtask struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	AgentID     int64     `json:"agent_id"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskNote holds the shared notes document for a task.
type TaskNote struct {
	TaskID    int64     `json:"task_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectContext is the markdown context document of a project.
type ProjectContext struct {
	ProjectID int64     `json:"project_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Setting is a single key/value preference.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
