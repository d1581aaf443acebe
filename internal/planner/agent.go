// Package planner decomposes a task into subtasks by running a tool-use
// conversation with the planning agent's model, falling back to a fixed
// three-step plan when the model path fails.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/ashureev/orcascore/internal/events"
	"github.com/ashureev/orcascore/internal/llm"
	"github.com/ashureev/orcascore/internal/metrics"
	"github.com/ashureev/orcascore/internal/store"
)

// Event names delivered to the UI.
const (
	EventProgress = "task-planning-progress"
	EventComplete = "task-planning-complete"
)

// MaxIterations bounds the provider round-trips of one run.
const MaxIterations = 20

const maxTokens = 4096

var (
	// ErrPlanningAgentNotFound is returned by New when no agent has the planning role.
	ErrPlanningAgentNotFound = errors.New("planning agent not found in database. Please ensure a planning agent exists with system_role = 'planning'")

	// ErrMaxIterations is returned when the model keeps requesting tools.
	ErrMaxIterations = fmt.Errorf("planning exceeded maximum iterations (%d)", MaxIterations)

	// ErrNoWorkers is returned by the fallback plan when no worker agent exists.
	ErrNoWorkers = errors.New("no agents available for fallback planning")
)

// Store is the persistence the planner needs.
type Store interface {
	GetPlanningAgent(ctx context.Context) (*domain.Agent, error)
	ListWorkerAgents(ctx context.Context) ([]domain.Agent, error)
	CreateSubtask(ctx context.Context, subtask *domain.Subtask) error
}

// ChatClient sends messages to the model and resolves friendly model names.
type ChatClient interface {
	Send(ctx context.Context, req llm.ChatRequest) (string, error)
	ResolveModelID(ctx context.Context, friendly string) (string, error)
}

// Emitter delivers named events to the UI.
type Emitter interface {
	Emit(name string, payload any) error
}

// Deps are the collaborators shared by every planning run.
type Deps struct {
	Store   Store
	Chat    ChatClient
	Events  Emitter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Progress is the payload of EventProgress.
type Progress struct {
	TaskID      int64   `json:"task_id"`
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Progress    float64 `json:"progress"`
	CurrentStep *string `json:"current_step"`
}

// Result summarizes a finished plan.
type Result struct {
	Success         bool   `json:"success"`
	SubtasksCreated int    `json:"subtasks_created"`
	Message         string `json:"message"`
	UsedFallback    bool   `json:"used_fallback"`
}

// Agent plans a single task. It holds the planning prompt and worker roster
// loaded at construction; both stay fixed for the run.
type Agent struct {
	deps    Deps
	logger  *slog.Logger
	taskID  int64
	prompt  string
	model   string
	workers []domain.Agent
}

// New loads the planning agent and the worker roster. It emits no events.
func New(ctx context.Context, deps Deps, taskID int64) (*Agent, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	planning, err := deps.Store.GetPlanningAgent(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlanningAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load planning agent: %w", err)
	}

	workers, err := deps.Store.ListWorkerAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	return &Agent{
		deps:    deps,
		logger:  logger.With("task_id", taskID),
		taskID:  taskID,
		prompt:  planning.AgentPrompt,
		model:   planning.ModelName,
		workers: workers,
	}, nil
}

// PlanTask runs the tool-use loop. Each create_subtask call the model makes
// inserts one subtask; the loop ends when the model stops with end_turn.
func (a *Agent) PlanTask(ctx context.Context, title string, description *string) (Result, error) {
	a.emitProgress("analyzing", "Initializing AI planning agent...", 0.1, "Initialization")

	system := buildSystemPrompt(a.prompt, a.taskID, title, description, a.workers)
	conversation := []llm.Message{llm.TextMessage(llm.RoleUser, seedInstruction)}

	model, err := a.deps.Chat.ResolveModelID(ctx, a.model)
	if err != nil {
		return Result{}, fmt.Errorf("resolve model %s: %w", a.model, err)
	}

	a.emitProgress("planning", "AI agent analyzing task...", 0.2, "Analysis")

	created := 0
	for iteration := 1; ; iteration++ {
		if iteration > MaxIterations {
			return Result{}, ErrMaxIterations
		}
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("planning cancelled: %w", err)
		}

		body, err := a.deps.Chat.Send(ctx, llm.ChatRequest{
			Model:     model,
			Messages:  conversation,
			System:    system,
			MaxTokens: maxTokens,
			Tools:     toolSchemas,
		})
		if err != nil {
			return Result{}, err
		}

		resp, err := llm.ParseResponse(body)
		if err != nil {
			return Result{}, err
		}
		if text := resp.Text(); text != "" {
			a.logger.Debug("Planning agent text", "iteration", iteration, "text", text)
		}

		if resp.StopReason == llm.StopEndTurn {
			break
		}
		if resp.StopReason != llm.StopToolUse {
			return Result{}, fmt.Errorf("unexpected stop reason: %s", resp.StopReason)
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			return Result{}, errors.New("agent requested tool_use but provided no tool calls")
		}

		a.logger.Debug("Planning iteration", "iteration", iteration, "tool_calls", len(calls))

		results := make([]llm.ToolResult, 0, len(calls))
		for _, call := range calls {
			if call.Name != toolCreateSubtask {
				results = append(results, llm.NewToolResult(call.ID, "Unknown tool: "+call.Name, true))
				continue
			}

			msg, err := a.executeCreateSubtask(ctx, call)
			if err != nil {
				a.logger.Warn("create_subtask rejected", "tool_use_id", call.ID, "error", err)
				results = append(results, llm.NewToolResult(call.ID, "Tool execution error: "+err.Error(), true))
				continue
			}

			created++
			a.deps.Metrics.SubtaskCreated("ai")
			a.emitProgress("creating",
				fmt.Sprintf("Created subtask %d of estimated 3-7...", created),
				0.2+min(0.6*float64(created)/5.0, 0.6),
				"Subtask Creation")
			results = append(results, llm.NewToolResult(call.ID, msg, false))
		}

		assistant, err := llm.BlocksMessage(llm.RoleAssistant, resp.Content)
		if err != nil {
			return Result{}, err
		}
		user, err := llm.BlocksMessage(llm.RoleUser, results)
		if err != nil {
			return Result{}, err
		}
		conversation = append(conversation, assistant, user)
	}

	a.emitProgress("finalizing", "Planning complete, generating summary...", 0.9, "Finalization")

	return Result{
		Success:         true,
		SubtasksCreated: created,
		Message:         fmt.Sprintf("Successfully created %d subtasks using AI planning agent", created),
	}, nil
}

func (a *Agent) executeCreateSubtask(ctx context.Context, call llm.ContentBlock) (string, error) {
	input, err := decodeCreateSubtaskInput(call.Input)
	if err != nil {
		return "", err
	}
	return a.createSubtask(ctx, input)
}

// createSubtask is the single write path for both the model and the fallback plan.
func (a *Agent) createSubtask(ctx context.Context, input createSubtaskInput) (string, error) {
	if !a.isWorker(input.AgentID) {
		return "", fmt.Errorf("invalid agent_id: %d", input.AgentID)
	}

	subtask := &domain.Subtask{
		TaskID:      a.taskID,
		Title:       input.Title,
		Description: input.Description,
		AgentID:     input.AgentID,
	}
	if err := a.deps.Store.CreateSubtask(ctx, subtask); err != nil {
		return "", fmt.Errorf("failed to create subtask: %w", err)
	}
	return fmt.Sprintf("Successfully created subtask: '%s'", input.Title), nil
}

func (a *Agent) isWorker(id int64) bool {
	for _, w := range a.workers {
		if w.ID == id {
			return true
		}
	}
	return false
}

var fallbackSteps = []struct {
	title       string
	description string
}{
	{"Research and plan approach", "Gather requirements, research best practices, and develop a comprehensive execution plan"},
	{"Execute primary deliverables", "Complete the main task deliverables according to the researched plan and requirements"},
	{"Review and finalize output", "Quality check, refinements, and final validation of deliverables"},
}

// PlanTaskWithFallback runs PlanTask and, if it fails, creates the fixed
// three-step plan instead. The model path is never retried. A cancelled ctx
// skips the fallback and returns an error wrapping ctx.Err().
func (a *Agent) PlanTaskWithFallback(ctx context.Context, title string, description *string) (Result, error) {
	result, err := a.PlanTask(ctx, title, description)
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		a.logger.Info("Planning cancelled, skipping fallback plan", "error", err)
		if !errors.Is(err, ctxErr) {
			err = fmt.Errorf("planning cancelled: %w", ctxErr)
		}
		return Result{}, err
	}

	a.logger.Warn("AI planning failed, using fallback plan", "error", err, "transient", llm.IsTransient(err))
	a.emitProgress("fallback", "AI planning unavailable, using fallback...", 0.3, "Fallback")

	return a.fallbackPlan(ctx)
}

func (a *Agent) fallbackPlan(ctx context.Context) (Result, error) {
	if len(a.workers) == 0 {
		return Result{}, ErrNoWorkers
	}

	created := 0
	for i, step := range fallbackSteps {
		input := createSubtaskInput{
			Title:       step.title,
			Description: step.description,
			AgentID:     a.workers[i%len(a.workers)].ID,
		}
		if _, err := a.createSubtask(ctx, input); err != nil {
			return Result{}, err
		}
		created++
		a.deps.Metrics.SubtaskCreated("fallback")

		a.emitProgress("fallback_creating",
			fmt.Sprintf("Fallback: Created subtask %d/%d", created, len(fallbackSteps)),
			0.3+0.5*float64(created)/float64(len(fallbackSteps)),
			"Fallback Planning")
	}

	return Result{
		Success:         true,
		SubtasksCreated: created,
		Message:         fmt.Sprintf("Created %d subtasks using fallback planning (AI agent unavailable)", created),
		UsedFallback:    true,
	}, nil
}

// emitProgress publishes a progress event. Delivery failures are logged and
// never abort the run.
func (a *Agent) emitProgress(status, message string, progress float64, step string) {
	if a.deps.Events == nil {
		return
	}
	var currentStep *string
	if step != "" {
		currentStep = &step
	}

	err := a.deps.Events.Emit(EventProgress, Progress{
		TaskID:      a.taskID,
		Status:      status,
		Message:     message,
		Progress:    clamp01(progress),
		CurrentStep: currentStep,
	})
	switch {
	case err == nil:
	case errors.Is(err, events.ErrNoSubscribers):
		a.logger.Debug("Progress event not delivered, no subscribers", "status", status)
	default:
		a.logger.Warn("Failed to emit progress event", "status", status, "error", err)
	}
}

func clamp01(v float64) float64 {
	return max(0, min(v, 1))
}
