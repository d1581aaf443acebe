package api

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/ashureev/orcascore/internal/domain"
	"github.com/ashureev/orcascore/internal/llm"
	"github.com/ashureev/orcascore/internal/provider"
)

func TestStartPlanning(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/planning", map[string]any{
		"task_id":          7,
		"task_title":       "Launch",
		"task_description": "Ship it",
	})
	expectStatus(t, rec, http.StatusAccepted)
	body := decode[map[string]string](t, rec)
	if body["status"] != "Task planning started" {
		t.Errorf("expected status 'Task planning started', got %q", body["status"])
	}
	if body["run_id"] != "run-1" {
		t.Errorf("expected run_id 'run-1', got %q", body["run_id"])
	}

	if len(ts.runner.runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(ts.runner.runs))
	}
	run := ts.runner.runs[0]
	if run.taskID != 7 || run.title != "Launch" {
		t.Errorf("unexpected run %+v", run)
	}
	if run.description == nil || *run.description != "Ship it" {
		t.Errorf("expected description 'Ship it', got %v", run.description)
	}
}

func TestStartPlanningValidation(t *testing.T) {
	ts := newTestServer(t)

	for name, body := range map[string]any{
		"missing task id": map[string]any{"task_title": "x"},
		"missing title":   map[string]any{"task_id": 1},
		"malformed":       `{"task_id":`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/planning", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
	if len(ts.runner.runs) != 0 {
		t.Errorf("expected no runs, got %d", len(ts.runner.runs))
	}
}

func TestLockLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/locks/7", map[string]any{"locked_by": "user", "original_content": "before"})
	expectStatus(t, rec, http.StatusOK)
	if !decode[map[string]bool](t, rec)["acquired"] {
		t.Fatal("expected first acquire to succeed")
	}

	rec = ts.do(t, http.MethodPost, "/api/locks/7", map[string]any{"locked_by": "agent"})
	expectStatus(t, rec, http.StatusOK)
	if decode[map[string]bool](t, rec)["acquired"] {
		t.Fatal("expected second owner to be refused")
	}

	rec = ts.do(t, http.MethodGet, "/api/locks/7", nil)
	status := decode[domain.LockStatus](t, rec)
	if !status.IsLocked || status.LockedBy == nil || *status.LockedBy != "user" {
		t.Fatalf("expected lock held by user, got %+v", status)
	}

	rec = ts.do(t, http.MethodGet, "/api/locks/7/original", nil)
	if got := decode[map[string]string](t, rec)["content"]; got != "before" {
		t.Errorf("expected original content 'before', got %q", got)
	}

	rec = ts.do(t, http.MethodDelete, "/api/locks/7", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = ts.do(t, http.MethodGet, "/api/locks/7", nil)
	expectJSON(t, `{"is_locked":false,"locked_by":null}`, rec)
}

func TestLockErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/locks/7", map[string]any{"locked_by": "robot"})
	expectStatus(t, rec, http.StatusBadRequest)
	if got := errorMessage(t, rec); got != "locked_by must be 'agent' or 'user'" {
		t.Errorf("unexpected error message %q", got)
	}

	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/api/locks/abc", nil},
		{http.MethodPost, "/api/locks/cleanup", map[string]any{"timeout_minutes": -1}},
		{http.MethodPost, "/api/locks/cleanup", map[string]any{}},
	}
	for _, c := range cases {
		if rec := ts.do(t, c.method, c.path, c.body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s %v: expected 400, got %d", c.method, c.path, c.body, rec.Code)
		}
	}
}

func TestLockBulkOperations(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/locks/1", "/api/locks/2"} {
		expectStatus(t, ts.do(t, http.MethodPost, path, map[string]any{"locked_by": "agent"}), http.StatusOK)
	}

	rec := ts.do(t, http.MethodPost, "/api/locks/cleanup", map[string]any{"timeout_minutes": 5})
	expectStatus(t, rec, http.StatusOK)
	if removed := decode[map[string]int64](t, rec)["removed"]; removed != 0 {
		t.Errorf("expected fresh locks to survive, removed %d", removed)
	}

	rec = ts.do(t, http.MethodDelete, "/api/locks", nil)
	expectStatus(t, rec, http.StatusOK)
	if released := decode[map[string]int64](t, rec)["released"]; released != 2 {
		t.Errorf("expected 2 released, got %d", released)
	}
}

func TestSendChatMessage(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.body = `{"stop_reason":"end_turn","content":[{"type":"text","text":"hi"}]}`

	rec := ts.do(t, http.MethodPost, "/api/chat/messages", map[string]any{
		"model":      "claude-sonnet-4",
		"messages":   []map[string]any{{"role": "user", "content": "hello"}},
		"system":     "be brief",
		"max_tokens": 512,
	})
	expectStatus(t, rec, http.StatusOK)
	expectJSON(t, ts.gateway.body, rec)

	req := ts.gateway.lastReq
	if req.Model != "claude-sonnet-4" || req.MaxTokens != 512 || req.System != "be brief" {
		t.Errorf("unexpected forwarded request %+v", req)
	}
	if len(req.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(req.Messages))
	}
	if got := strings.TrimSpace(string(req.Messages[0].Content)); got != `"hello"` {
		t.Errorf("expected content \"hello\", got %s", got)
	}
}

func TestSendChatMessageErrors(t *testing.T) {
	ts := newTestServer(t)
	valid := map[string]any{"model": "m", "messages": []any{}, "max_tokens": 10}

	rec := ts.do(t, http.MethodPost, "/api/chat/messages", map[string]any{"messages": []any{}, "max_tokens": 10})
	expectStatus(t, rec, http.StatusBadRequest)

	ts.gateway.err = &provider.ConfigError{Setting: "api_key", Msg: "Anthropic API key not configured. Please add your API key in Settings."}
	rec = ts.do(t, http.MethodPost, "/api/chat/messages", valid)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := errorMessage(t, rec); got != "Anthropic API key not configured. Please add your API key in Settings." {
		t.Errorf("unexpected error message %q", got)
	}

	_, ts.gateway.err = provider.ParseKind("bedrock")
	rec = ts.do(t, http.MethodPost, "/api/chat/messages", valid)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := errorMessage(t, rec); got != "unknown provider: bedrock" {
		t.Errorf("unexpected error message %q", got)
	}

	ts.gateway.err = llm.NewTransientError(&llm.APIError{StatusCode: 529, Body: "overloaded"})
	rec = ts.do(t, http.MethodPost, "/api/chat/messages", valid)
	expectStatus(t, rec, http.StatusBadGateway)
	if got := errorMessage(t, rec); !strings.Contains(got, "API error (529): overloaded") {
		t.Errorf("unexpected error message %q", got)
	}
}

func TestTestConnection(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/chat/test-connection", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]string](t, rec)["status"]; got != "Connection successful" {
		t.Errorf("unexpected status %q", got)
	}

	ts.gateway.err = llm.NewFatalError(errors.New("Authentication failed. Check your API key."))
	rec = ts.do(t, http.MethodPost, "/api/chat/test-connection", nil)
	expectStatus(t, rec, http.StatusBadGateway)
	if got := errorMessage(t, rec); got != "Authentication failed. Check your API key." {
		t.Errorf("unexpected error message %q", got)
	}
}

func TestModelsAndResolve(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.models = []provider.ModelInfo{{ID: "claude-sonnet-4-20250514", DisplayName: "claude-sonnet-4", DisplayLabel: "Claude Sonnet 4"}}
	ts.gateway.resolved = map[string]string{"claude-sonnet-4": "claude-sonnet-4-20250514"}

	rec := ts.do(t, http.MethodGet, "/api/models", nil)
	expectStatus(t, rec, http.StatusOK)
	models := decode[[]provider.ModelInfo](t, rec)
	if len(models) != 1 || models[0].ID != "claude-sonnet-4-20250514" {
		t.Fatalf("unexpected models %+v", models)
	}

	for name, want := range map[string]string{
		"claude-sonnet-4": "claude-sonnet-4-20250514",
		"custom-model":    "custom-model",
	} {
		rec = ts.do(t, http.MethodGet, "/api/models/resolve?name="+name, nil)
		if got := decode[map[string]string](t, rec)["id"]; got != want {
			t.Errorf("resolve %q: expected %q, got %q", name, want, got)
		}
	}

	rec = ts.do(t, http.MethodGet, "/api/models/resolve", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestSettingsRoutes(t *testing.T) {
	ts := newTestServer(t)

	expectStatus(t, ts.do(t, http.MethodGet, "/api/settings/api_provider", nil), http.StatusNotFound)
	expectStatus(t, ts.do(t, http.MethodPut, "/api/settings/api_provider", map[string]string{"value": "litellm"}), http.StatusOK)

	rec := ts.do(t, http.MethodGet, "/api/settings/api_provider", nil)
	expectStatus(t, rec, http.StatusOK)
	expectJSON(t, `{"key":"api_provider","value":"litellm"}`, rec)

	expectStatus(t, ts.do(t, http.MethodDelete, "/api/settings/api_provider", nil), http.StatusNoContent)
	// Deleting a missing key succeeds.
	expectStatus(t, ts.do(t, http.MethodDelete, "/api/settings/api_provider", nil), http.StatusNoContent)
}

func TestAgentRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/agents", nil)
	expectStatus(t, rec, http.StatusOK)
	expectJSON(t, `[]`, rec)

	rec = ts.do(t, http.MethodPost, "/api/agents", map[string]any{
		"name": "Planner", "model_name": "claude-sonnet-4", "agent_prompt": "plan", "system_role": "planning",
	})
	expectStatus(t, rec, http.StatusCreated)
	if created := decode[domain.Agent](t, rec); created.ID == 0 {
		t.Error("expected created agent to have an ID")
	}

	rec = ts.do(t, http.MethodPost, "/api/agents", map[string]any{
		"name": "Planner 2", "model_name": "claude-sonnet-4", "system_role": "planning",
	})
	expectStatus(t, rec, http.StatusConflict)

	rec = ts.do(t, http.MethodPost, "/api/agents", map[string]any{"name": "X", "model_name": "m", "system_role": "boss"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = ts.do(t, http.MethodPost, "/api/agents", map[string]any{"name": "Writer", "model_name": "claude-haiku-4"})
	expectStatus(t, rec, http.StatusCreated)

	rec = ts.do(t, http.MethodGet, "/api/agents", nil)
	agents := decode[[]domain.Agent](t, rec)
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	if agents[0].IsWorker() || !agents[1].IsWorker() {
		t.Errorf("expected planner then worker, got %+v", agents)
	}
}

func TestTaskRoutes(t *testing.T) {
	ts := newTestServer(t)

	if err := ts.repo.CreateSubtask(t.Context(), &domain.Subtask{TaskID: 3, Title: "one", Description: "d", AgentID: 1}); err != nil {
		t.Fatalf("CreateSubtask failed: %v", err)
	}

	rec := ts.do(t, http.MethodGet, "/api/tasks/3/subtasks", nil)
	expectStatus(t, rec, http.StatusOK)
	subtasks := decode[[]domain.Subtask](t, rec)
	if len(subtasks) != 1 || subtasks[0].Title != "one" {
		t.Fatalf("unexpected subtasks %+v", subtasks)
	}

	expectJSON(t, `[]`, ts.do(t, http.MethodGet, "/api/tasks/4/subtasks", nil))

	rec = ts.do(t, http.MethodGet, "/api/tasks/3/notes", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[domain.TaskNote](t, rec).Content; got != "" {
		t.Errorf("expected empty notes, got %q", got)
	}

	expectStatus(t, ts.do(t, http.MethodPut, "/api/tasks/3/notes", map[string]string{"content": "shared notes"}), http.StatusOK)

	rec = ts.do(t, http.MethodGet, "/api/tasks/3/notes", nil)
	if got := decode[domain.TaskNote](t, rec).Content; got != "shared notes" {
		t.Errorf("expected 'shared notes', got %q", got)
	}
}

func TestProjectContextRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/projects/2/context", nil)
	expectStatus(t, rec, http.StatusOK)
	pc := decode[domain.ProjectContext](t, rec)
	if pc.ProjectID != 2 || pc.Content != "" {
		t.Errorf("expected empty context for project 2, got %+v", pc)
	}

	rec = ts.do(t, http.MethodPut, "/api/projects/2/context", map[string]string{"content": "# Roadmap\n- beta"})
	expectStatus(t, rec, http.StatusOK)

	rec = ts.do(t, http.MethodGet, "/api/projects/2/context", nil)
	if got := decode[domain.ProjectContext](t, rec).Content; got != "# Roadmap\n- beta" {
		t.Errorf("expected stored markdown, got %q", got)
	}

	rec = ts.do(t, http.MethodGet, "/api/projects/x/context", nil)
	expectStatus(t, rec, http.StatusBadRequest)
	if got := errorMessage(t, rec); got != `invalid project id "x"` {
		t.Errorf("unexpected error message %q", got)
	}

	expectStatus(t, ts.do(t, http.MethodPut, "/api/projects/2/context", `{"content":`), http.StatusBadRequest)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/health", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec)["status"]; got != "healthy" {
		t.Errorf("expected healthy, got %v", got)
	}
}
