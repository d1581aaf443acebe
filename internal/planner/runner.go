package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/ashureev/orcascore/internal/events"
	"github.com/google/uuid"
)

// CompleteEvent is the payload of EventComplete.
type CompleteEvent struct {
	TaskID          int64   `json:"task_id"`
	RunID           string  `json:"run_id"`
	Success         bool    `json:"success"`
	Message         string  `json:"message"`
	SubtasksCreated *int    `json:"subtasks_created,omitempty"`
	Error           *string `json:"error,omitempty"`
}

// Runner starts planning runs in the background. Outcomes are delivered only
// through EventComplete.
type Runner struct {
	ctx    context.Context
	deps   Deps
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRunner creates a runner whose runs are bound to ctx, normally the
// process lifetime rather than the request that started them.
func NewRunner(ctx context.Context, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{ctx: ctx, deps: deps, logger: logger}
}

// Start launches a run and returns its id immediately.
func (r *Runner) Start(taskID int64, title string, description *string) string {
	runID := uuid.New().String()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(runID, taskID, title, description)
	}()
	return runID
}

// Wait blocks until every started run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(runID string, taskID int64, title string, description *string) {
	logger := r.logger.With("run_id", runID, "task_id", taskID)
	r.deps.Metrics.PlanningStarted()

	outcome := "failed"
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Planning run panicked", "panic", rec, "stack", string(debug.Stack()))
			r.complete(logger, CompleteEvent{
				TaskID:  taskID,
				RunID:   runID,
				Message: "Task planning failed",
				Error:   strPtr(fmt.Sprint(rec)),
			})
			outcome = "failed"
		}
		r.deps.Metrics.PlanningFinished(outcome)
	}()

	logger.Info("Planning run started")

	deps := r.deps
	deps.Logger = logger
	agent, err := New(r.ctx, deps, taskID)
	if err != nil {
		logger.Error("Planning run could not start", "error", err)
		r.complete(logger, CompleteEvent{
			TaskID:  taskID,
			RunID:   runID,
			Message: "Task planning failed",
			Error:   strPtr(err.Error()),
		})
		return
	}

	result, err := agent.PlanTaskWithFallback(r.ctx, title, description)
	if err != nil {
		message := "Planning failed"
		if r.ctx.Err() != nil {
			message = "Planning cancelled"
			logger.Info("Planning run cancelled", "error", err)
		} else {
			logger.Error("Planning run failed", "error", err)
		}
		r.complete(logger, CompleteEvent{
			TaskID:  taskID,
			RunID:   runID,
			Message: message,
			Error:   strPtr(err.Error()),
		})
		return
	}

	outcome = "ai"
	if result.UsedFallback {
		outcome = "fallback"
	}
	logger.Info("Planning run completed", "subtasks_created", result.SubtasksCreated, "outcome", outcome)

	created := result.SubtasksCreated
	r.complete(logger, CompleteEvent{
		TaskID:          taskID,
		RunID:           runID,
		Success:         true,
		Message:         result.Message,
		SubtasksCreated: &created,
	})
}

func (r *Runner) complete(logger *slog.Logger, ev CompleteEvent) {
	if r.deps.Events == nil {
		return
	}
	err := r.deps.Events.Emit(EventComplete, ev)
	switch {
	case err == nil:
	case errors.Is(err, events.ErrNoSubscribers):
		logger.Debug("Completion event not delivered, no subscribers")
	default:
		logger.Warn("Failed to emit completion event", "error", err)
	}
}

func strPtr(s string) *string { return &s }
