package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Relay/internal/backend"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
	"github.com/shaiso/Relay/internal/orchestrator"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/repo"
)

// --- Fakes ---

// fakeRunner проверяет запрос как engine и возвращает вывод последнего шага.
type fakeRunner struct {
	err error
}

func (f *fakeRunner) Validate(req *domain.WorkflowRequest) error {
	return engine.Validate(req, engine.DefaultMaxSteps)
}

func (f *fakeRunner) Run(_ context.Context, req *domain.WorkflowRequest) (*domain.WorkflowResult, error) {
	if err := f.Validate(req); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}

	now := time.Now().UTC()
	result := &domain.WorkflowResult{
		RunID:      uuid.New(),
		Status:     domain.RunStatusCompleted,
		StartedAt:  now,
		FinishedAt: now,
	}
	for _, s := range req.Steps {
		out := "out:" + s.Name
		result.Steps = append(result.Steps, domain.StepResult{StepName: s.Name, OutputText: out, Status: domain.StepStatusOK})
		result.FinalOutput = out
	}
	return result, nil
}

// fakeRegistry — реестр с фиксированным набором backend'ов.
type fakeRegistry struct {
	backends  map[string]domain.BackendDescriptor
	refreshed int
}

func newFakeRegistry(descs ...domain.BackendDescriptor) *fakeRegistry {
	r := &fakeRegistry{backends: make(map[string]domain.BackendDescriptor)}
	for _, d := range descs {
		r.backends[d.ID] = d
	}
	return r
}

func (r *fakeRegistry) List() []domain.BackendDescriptor {
	out := make([]domain.BackendDescriptor, 0, len(r.backends))
	for _, d := range r.backends {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeRegistry) Usable() bool { return len(r.backends) > 0 }

func (r *fakeRegistry) Refresh(context.Context) (*registry.Report, error) {
	r.refreshed++
	return &registry.Report{Total: len(r.backends), Available: len(r.backends)}, nil
}

func (r *fakeRegistry) Local() (domain.BackendDescriptor, error) {
	return r.lookup(registry.LocalID)
}

func (r *fakeRegistry) LookupServer(selector string) (domain.BackendDescriptor, error) {
	return r.lookup(selector)
}

func (r *fakeRegistry) LookupAgent(id string) (domain.BackendDescriptor, error) {
	return r.lookup(domain.NormalizeAgentID(id))
}

func (r *fakeRegistry) AdHocAgent(id string) domain.BackendDescriptor {
	agentID := domain.NormalizeAgentID(id)
	return domain.BackendDescriptor{ID: agentID, Kind: domain.BackendKindRemoteAgent, Availability: domain.AvailabilityUnknown}
}

func (r *fakeRegistry) lookup(id string) (domain.BackendDescriptor, error) {
	d, ok := r.backends[id]
	if !ok {
		return domain.BackendDescriptor{}, fmt.Errorf("%w: %s", registry.ErrBackendNotFound, id)
	}
	return d, nil
}

// memRuns — журнал в памяти.
type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]domain.Run
}

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[uuid.UUID]domain.Run)}
}

func (m *memRuns) Create(_ context.Context, run *domain.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &r, nil
}

func (m *memRuns) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Run
	for _, r := range m.runs {
		if filter.Status == "" || r.Status == filter.Status {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeSubmitter запоминает поставленные в очередь runs.
type fakeSubmitter struct {
	ids []uuid.UUID
}

func (s *fakeSubmitter) PublishWorkflowSubmitted(_ context.Context, id uuid.UUID) error {
	s.ids = append(s.ids, id)
	return nil
}

var (
	localBackend = domain.BackendDescriptor{ID: registry.LocalID, Kind: domain.BackendKindLocal, Endpoint: "http://local"}
	agentBackend = domain.BackendDescriptor{ID: "@acme/echo", Kind: domain.BackendKindRemoteAgent, Endpoint: "wss://agents/@acme/echo"}
)

// echoClient отвечает "<backend>: <content>".
var echoClient = backend.ClientFunc(func(_ context.Context, b domain.BackendDescriptor, req *backend.Request) (*backend.Response, error) {
	switch req.Content {
	case "timeout":
		return nil, domain.NewBackendError(domain.KindTimeout, b.ID, "deadline exceeded", context.DeadlineExceeded)
	case "garbage":
		return nil, domain.NewBackendError(domain.KindProtocol, b.ID, "malformed response", nil)
	}
	return &backend.Response{Text: b.ID + ": " + req.Content}, nil
})

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Runner == nil {
		cfg.Runner = &fakeRunner{}
	}
	if cfg.Registry == nil {
		cfg.Registry = newFakeRegistry(localBackend, agentBackend)
	}
	if cfg.Client == nil {
		cfg.Client = echoClient
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// do выполняет запрос и декодирует JSON-ответ.
func do(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

var twoStepWorkflow = map[string]any{
	"input": "hi",
	"steps": []map[string]any{{"name": "a"}, {"name": "b"}},
}

// --- Health ---

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Config{})

	status, body := do(t, http.MethodGet, srv.URL+"/", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if body["status"] != "healthy" || body["service"] != ServiceName {
		t.Errorf("unexpected health body %v", body)
	}
}

// --- Workflow ---

func TestSubmitWorkflow_Sync(t *testing.T) {
	runs := newMemRuns()
	srv := newTestServer(t, Config{Runs: runs})

	status, body := do(t, http.MethodPost, srv.URL+"/v1/workflow", twoStepWorkflow)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}

	result := data(body)
	if result["status"] != string(domain.RunStatusCompleted) {
		t.Errorf("expected COMPLETED, got %v", result["status"])
	}
	if result["final_output"] != "out:b" {
		t.Errorf("expected final_output out:b, got %v", result["final_output"])
	}

	// Синхронный run попадает в журнал
	id, err := uuid.Parse(result["run_id"].(string))
	if err != nil {
		t.Fatalf("invalid run_id: %v", err)
	}
	stored, err := runs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("run not recorded: %v", err)
	}
	if stored.Status != domain.RunStatusCompleted {
		t.Errorf("expected recorded COMPLETED, got %s", stored.Status)
	}
}

func TestSubmitWorkflow_Errors(t *testing.T) {
	tests := []struct {
		name       string
		runner     *fakeRunner
		body       any
		wantStatus int
		wantCode   ErrorCode
	}{
		{
			name:       "invalid JSON",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "no steps",
			body:       map[string]any{"input": "hi", "steps": []any{}},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name: "duplicate step names",
			body: map[string]any{"steps": []map[string]any{
				{"name": "a"}, {"name": "a"},
			}},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "registry empty",
			runner:     &fakeRunner{err: orchestrator.ErrNoBackends},
			body:       twoStepWorkflow,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeNoBackends,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{}
			if tt.runner != nil {
				cfg.Runner = tt.runner
			}
			srv := newTestServer(t, cfg)

			status, body := do(t, http.MethodPost, srv.URL+"/v1/workflow", tt.body)
			if status != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, status)
			}
			if code := errorCode(body); code != string(tt.wantCode) {
				t.Errorf("expected code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestSubmitWorkflow_Async(t *testing.T) {
	runs := newMemRuns()
	submitter := &fakeSubmitter{}
	srv := newTestServer(t, Config{Runs: runs, Submitter: submitter})

	status, body := do(t, http.MethodPost, srv.URL+"/v1/workflow?async=true", twoStepWorkflow)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %v", status, body)
	}

	run := data(body)
	if run["status"] != string(domain.RunStatusPending) {
		t.Errorf("expected PENDING, got %v", run["status"])
	}

	if len(submitter.ids) != 1 {
		t.Fatalf("expected 1 submitted run, got %d", len(submitter.ids))
	}
	stored, err := runs.GetByID(context.Background(), submitter.ids[0])
	if err != nil {
		t.Fatalf("submitted run not stored: %v", err)
	}
	if len(stored.Request.Steps) != 2 {
		t.Errorf("expected stored request with 2 steps, got %d", len(stored.Request.Steps))
	}
}

func TestSubmitWorkflow_AsyncRejected(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		body       any
		wantStatus int
		wantCode   ErrorCode
	}{
		{
			name:       "queue not configured",
			cfg:        Config{Runs: newMemRuns()},
			body:       twoStepWorkflow,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeNotConfigured,
		},
		{
			name:       "invalid workflow is not enqueued",
			cfg:        Config{Runs: newMemRuns(), Submitter: &fakeSubmitter{}},
			body:       map[string]any{"steps": []any{}},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "empty registry",
			cfg:        Config{Runs: newMemRuns(), Submitter: &fakeSubmitter{}, Registry: newFakeRegistry()},
			body:       twoStepWorkflow,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeNoBackends,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.cfg)

			status, body := do(t, http.MethodPost, srv.URL+"/v1/workflow?async=true", tt.body)
			if status != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, status)
			}
			if code := errorCode(body); code != string(tt.wantCode) {
				t.Errorf("expected code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

// --- Backends ---

func TestListBackends(t *testing.T) {
	srv := newTestServer(t, Config{})

	for _, path := range []string{"/v1/backends", "/v1/mcp-servers"} {
		t.Run(path, func(t *testing.T) {
			status, body := do(t, http.MethodGet, srv.URL+path, nil)
			if status != http.StatusOK {
				t.Fatalf("expected 200, got %d", status)
			}
			list := data(body)
			if list["total"] != float64(2) {
				t.Errorf("expected 2 backends, got %v", list["total"])
			}
		})
	}
}

func TestRefreshBackends(t *testing.T) {
	reg := newFakeRegistry(localBackend)
	srv := newTestServer(t, Config{Registry: reg})

	status, body := do(t, http.MethodPost, srv.URL+"/v1/backends/refresh", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if reg.refreshed != 1 {
		t.Errorf("expected 1 refresh, got %d", reg.refreshed)
	}
	report, _ := data(body)["report"].(map[string]any)
	if report["total"] != float64(1) {
		t.Errorf("unexpected report %v", report)
	}
}

func TestTestBackend(t *testing.T) {
	tests := []struct {
		name       string
		req        TestCallRequest
		wantStatus int
		wantCode   ErrorCode
		wantText   string
	}{
		{
			name:       "defaults to local",
			req:        TestCallRequest{Prompt: "ping"},
			wantStatus: http.StatusOK,
			wantText:   "local: ping",
		},
		{
			name:       "agent id is normalized",
			req:        TestCallRequest{AgentID: "acme/echo", BackendID: registry.LocalID, Prompt: "ping"},
			wantStatus: http.StatusOK,
			wantText:   "@acme/echo: ping",
		},
		{
			name:       "agent outside catalog",
			req:        TestCallRequest{AgentID: "@turkyden/weather", Prompt: "ping"},
			wantStatus: http.StatusOK,
			wantText:   "@turkyden/weather: ping",
		},
		{
			name:       "missing prompt",
			req:        TestCallRequest{},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "bad parameter type",
			req:        TestCallRequest{Prompt: "ping", Parameters: map[string]any{"temperature": "hot"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "unknown backend",
			req:        TestCallRequest{BackendID: "nowhere", Prompt: "ping"},
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeBackendNotFound,
		},
		{
			name:       "backend timeout",
			req:        TestCallRequest{Prompt: "timeout"},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   ErrCodeBackendTimeout,
		},
		{
			name:       "backend protocol error",
			req:        TestCallRequest{Prompt: "garbage"},
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeBackendError,
		},
	}

	srv := newTestServer(t, Config{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, http.MethodPost, srv.URL+"/v1/backends/test", tt.req)
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %v", tt.wantStatus, status, body)
			}
			if tt.wantCode != "" {
				if code := errorCode(body); code != string(tt.wantCode) {
					t.Errorf("expected code %s, got %s", tt.wantCode, code)
				}
				return
			}
			if text := data(body)["text"]; text != tt.wantText {
				t.Errorf("expected text %q, got %v", tt.wantText, text)
			}
		})
	}
}

func TestTestBackend_AdHocAgentWithDefaultRegistry(t *testing.T) {
	// Реестр по умолчанию не разрешает ad hoc агентов в workflow
	reg := registry.New(registry.Config{
		LocalURL:       "http://localhost:8000",
		AgentServerURL: "wss://server.smithery.ai",
	})

	var called domain.BackendDescriptor
	client := backend.ClientFunc(func(ctx context.Context, b domain.BackendDescriptor, req *backend.Request) (*backend.Response, error) {
		called = b
		return echoClient(ctx, b, req)
	})
	srv := newTestServer(t, Config{Registry: reg, Client: client})

	status, body := do(t, http.MethodPost, srv.URL+"/v1/backends/test",
		TestCallRequest{AgentID: "@turkyden/weather", Prompt: "hi"})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, body)
	}
	if data(body)["backend_kind"] != string(domain.BackendKindRemoteAgent) {
		t.Errorf("unexpected response %v", data(body))
	}
	if called.Endpoint != "wss://server.smithery.ai/turkyden/weather" {
		t.Errorf("unexpected agent endpoint %s", called.Endpoint)
	}
}

// --- Runs ---

func TestRuns(t *testing.T) {
	runs := newMemRuns()
	run := domain.NewRun(domain.WorkflowRequest{Input: "hi", Steps: []domain.StepDefinition{{Name: "a"}}})
	runs.Create(context.Background(), run)

	srv := newTestServer(t, Config{Runs: runs})

	t.Run("get", func(t *testing.T) {
		status, body := do(t, http.MethodGet, srv.URL+"/v1/runs/"+run.ID.String(), nil)
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if data(body)["status"] != string(domain.RunStatusPending) {
			t.Errorf("unexpected run %v", data(body))
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		status, body := do(t, http.MethodGet, srv.URL+"/v1/runs/"+uuid.NewString(), nil)
		if status != http.StatusNotFound || errorCode(body) != string(ErrCodeNotFound) {
			t.Errorf("expected 404 NOT_FOUND, got %d %v", status, body)
		}
	})

	t.Run("get invalid id", func(t *testing.T) {
		status, _ := do(t, http.MethodGet, srv.URL+"/v1/runs/not-a-uuid", nil)
		if status != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", status)
		}
	})

	t.Run("list", func(t *testing.T) {
		status, body := do(t, http.MethodGet, srv.URL+"/v1/runs?status=PENDING", nil)
		if status != http.StatusOK {
			t.Fatalf("expected 200, got %d", status)
		}
		if body["total"] != float64(1) {
			t.Errorf("expected 1 run, got %v", body["total"])
		}
	})

	t.Run("list invalid limit", func(t *testing.T) {
		status, _ := do(t, http.MethodGet, srv.URL+"/v1/runs?limit=-1", nil)
		if status != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", status)
		}
	})
}

func TestRuns_NotConfigured(t *testing.T) {
	srv := newTestServer(t, Config{})

	status, body := do(t, http.MethodGet, srv.URL+"/v1/runs", nil)
	if status != http.StatusServiceUnavailable || errorCode(body) != string(ErrCodeNotConfigured) {
		t.Errorf("expected 503 NOT_CONFIGURED, got %d %v", status, body)
	}
}

// --- Middleware ---

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, Config{})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	req.Header.Set("X-Request-ID", "abc")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "abc" {
		t.Errorf("expected request id abc, got %q", got)
	}
}
