package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/ashureev/orcascore/internal/llm"
	"github.com/ashureev/orcascore/internal/locks"
	"github.com/ashureev/orcascore/internal/provider"
	"github.com/ashureev/orcascore/internal/store"
	"github.com/go-chi/chi/v5"
)

type startedRun struct {
	taskID      int64
	title       string
	description *string
}

type fakeRunner struct {
	mu   sync.Mutex
	runs []startedRun
}

func (f *fakeRunner) Start(taskID int64, title string, description *string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, startedRun{taskID, title, description})
	return "run-1"
}

type fakeGateway struct {
	lastReq  llm.ChatRequest
	body     string
	err      error
	models   []provider.ModelInfo
	resolved map[string]string
}

func (f *fakeGateway) SendChat(_ context.Context, req llm.ChatRequest) (string, error) {
	f.lastReq = req
	return f.body, f.err
}

func (f *fakeGateway) TestConnection(context.Context) error { return f.err }

func (f *fakeGateway) AvailableModels(context.Context) ([]provider.ModelInfo, error) {
	return f.models, f.err
}

func (f *fakeGateway) ResolveModelID(_ context.Context, name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if id, ok := f.resolved[name]; ok {
		return id, nil
	}
	return name, nil
}

type testServer struct {
	repo    store.Repository
	runner  *fakeRunner
	gateway *fakeGateway
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	ts := &testServer{repo: repo, runner: &fakeRunner{}, gateway: &fakeGateway{}}

	base := NewHandler(nil)
	r := chi.NewRouter()
	NewPlanningHandler(base, ts.runner).RegisterRoutes(r)
	NewLockHandler(base, locks.NewManager(repo)).RegisterRoutes(r)
	NewChatHandler(base, ts.gateway).RegisterRoutes(r)
	NewSettingsHandler(base, repo).RegisterRoutes(r)
	NewAgentHandler(base, repo).RegisterRoutes(r)
	NewTaskHandler(base, repo).RegisterRoutes(r)
	NewProjectHandler(base, repo).RegisterRoutes(r)
	NewHealthHandler(base, repo, nil).RegisterRoutes(r)
	ts.router = r
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func expectJSON(t *testing.T, want string, rec *httptest.ResponseRecorder) {
	t.Helper()
	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("bad expected JSON %q: %v", want, err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if !reflect.DeepEqual(w, g) {
		t.Errorf("expected body %s, got %s", want, rec.Body.String())
	}
}
