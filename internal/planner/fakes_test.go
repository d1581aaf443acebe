package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/ashureev/orcascore/internal/llm"
	"github.com/ashureev/orcascore/internal/store"
)

type memStore struct {
	mu       sync.Mutex
	planning *domain.Agent
	workers  []domain.Agent
	subtasks []domain.Subtask
	failOn   error
}

func newMemStore(workerIDs ...int64) *memStore {
	role := domain.SystemRolePlanning
	s := &memStore{
		planning: &domain.Agent{ID: 100, Name: "Planner", ModelName: "claude-sonnet-4", AgentPrompt: "You are a planner.", SystemRole: &role},
	}
	for _, id := range workerIDs {
		s.workers = append(s.workers, domain.Agent{
			ID:          id,
			Name:        fmt.Sprintf("Worker %d", id),
			ModelName:   "claude-haiku-4",
			AgentPrompt: fmt.Sprintf("Worker %d prompt", id),
		})
	}
	return s
}

func (s *memStore) GetPlanningAgent(context.Context) (*domain.Agent, error) {
	if s.planning == nil {
		return nil, fmt.Errorf("planning agent: %w", store.ErrNotFound)
	}
	return s.planning, nil
}

func (s *memStore) ListWorkerAgents(context.Context) ([]domain.Agent, error) {
	return s.workers, nil
}

func (s *memStore) CreateSubtask(_ context.Context, st *domain.Subtask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		return s.failOn
	}
	st.ID = int64(len(s.subtasks) + 1)
	s.subtasks = append(s.subtasks, *st)
	return nil
}

func (s *memStore) Subtasks() []domain.Subtask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Subtask(nil), s.subtasks...)
}

// scriptedChat replays canned responses and records each request.
type scriptedChat struct {
	mu        sync.Mutex
	responses []func() (string, error)
	repeat    func() (string, error)
	requests  []llm.ChatRequest
	resolved  int
}

func (c *scriptedChat) Send(_ context.Context, req llm.ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	i := len(c.requests) - 1
	if i < len(c.responses) {
		return c.responses[i]()
	}
	if c.repeat != nil {
		return c.repeat()
	}
	return "", errors.New("script exhausted")
}

func (c *scriptedChat) ResolveModelID(_ context.Context, friendly string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved++
	return friendly + "-20250514", nil
}

func (c *scriptedChat) Requests() []llm.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatRequest(nil), c.requests...)
}

func reply(body string) func() (string, error) {
	return func() (string, error) { return body, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

type toolCall struct {
	id    string
	name  string
	input string
}

func toolUseResponse(calls ...toolCall) string {
	content := []map[string]any{{"type": "text", "text": "Creating subtasks."}}
	for _, c := range calls {
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    c.id,
			"name":  c.name,
			"input": json.RawMessage(c.input),
		})
	}
	b, _ := json.Marshal(map[string]any{"stop_reason": "tool_use", "content": content})
	return string(b)
}

const endTurn = `{"stop_reason":"end_turn","content":[{"type":"text","text":"Done."}]}`

type recordedEvent struct {
	name    string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (e *recordingEmitter) Emit(name string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{name: name, payload: payload})
	return e.err
}

func (e *recordingEmitter) Progress() []Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Progress
	for _, ev := range e.events {
		if p, ok := ev.payload.(Progress); ok {
			out = append(out, p)
		}
	}
	return out
}

func (e *recordingEmitter) Completed() []CompleteEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []CompleteEvent
	for _, ev := range e.events {
		if c, ok := ev.payload.(CompleteEvent); ok {
			out = append(out, c)
		}
	}
	return out
}

func (e *recordingEmitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func statuses(ps []Progress) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Status)
	}
	return out
}
