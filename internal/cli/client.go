package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepResult — результат шага.
type StepResult struct {
	StepName    string         `json:"step_name"`
	BackendUsed string         `json:"backend_used,omitempty"`
	BackendKind string         `json:"backend_kind,omitempty"`
	OutputText  string         `json:"output_text"`
	Status      string         `json:"status"`
	Error       *ErrorInfo     `json:"error,omitempty"`
	Attempts    int            `json:"attempts,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Metadata    map[string]any `json:"raw_backend_metadata,omitempty"`
}

// ErrorInfo — ошибка шага или run.
type ErrorInfo struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WorkflowResult — итог синхронного выполнения.
type WorkflowResult struct {
	RunID       string       `json:"run_id"`
	Status      string       `json:"status"`
	Steps       []StepResult `json:"steps"`
	FinalOutput string       `json:"final_output"`
	Error       *ErrorInfo   `json:"error,omitempty"`
	StartedAt   string       `json:"started_at"`
	FinishedAt  string       `json:"finished_at"`
}

// RunResponse — запись журнала.
type RunResponse struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Request    json.RawMessage `json:"request,omitempty"`
	Result     *WorkflowResult `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	CreatedAt  string          `json:"created_at"`
	DurationMs int64           `json:"duration_ms,omitempty"`
}

// RunSummary — строка списка runs.
type RunSummary struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Steps       int    `json:"steps"`
	FinalOutput string `json:"final_output,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
}

// Backend — запись реестра.
type Backend struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Endpoint     string `json:"endpoint"`
	Availability string `json:"availability"`
	Description  string `json:"description,omitempty"`
	CheckedAt    string `json:"checked_at,omitempty"`
}

// RefreshReport — итог обновления реестра.
type RefreshReport struct {
	Total        int    `json:"total"`
	Available    int    `json:"available"`
	Unavailable  int    `json:"unavailable"`
	Unknown      int    `json:"unknown"`
	CatalogError string `json:"catalog_error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// TestCallRequest — диагностический вызов backend'а.
type TestCallRequest struct {
	BackendID  string         `json:"backend_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	Prompt     string         `json:"prompt"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TestCallResponse — ответ backend'а.
type TestCallResponse struct {
	BackendID   string         `json:"backend_id"`
	BackendKind string         `json:"backend_kind"`
	Text        string         `json:"text"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attempts    int            `json:"attempts"`
	DurationMs  int64          `json:"duration_ms"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Status string
	Limit  int
	Offset int
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Relay API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. timeout ограничивает весь запрос,
// включая синхронное выполнение workflow.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// --- Workflows ---

// RunWorkflow выполняет workflow синхронно.
func (c *Client) RunWorkflow(workflow json.RawMessage) (*WorkflowResult, error) {
	var result WorkflowResult
	err := c.post("/v1/workflow", workflow, &result)
	return &result, err
}

// EnqueueWorkflow ставит workflow в очередь и возвращает PENDING run.
func (c *Client) EnqueueWorkflow(workflow json.RawMessage) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/v1/workflow?async=true", workflow, &run)
	return &run, err
}

// --- Backends ---

// ListBackends возвращает снимок реестра.
func (c *Client) ListBackends() ([]Backend, error) {
	var resp struct {
		Backends []Backend `json:"backends"`
	}
	err := c.get("/v1/backends", &resp)
	return resp.Backends, err
}

// RefreshBackends обновляет реестр.
func (c *Client) RefreshBackends() (*RefreshReport, []Backend, error) {
	var resp struct {
		Report   *RefreshReport `json:"report"`
		Backends []Backend      `json:"backends"`
	}
	err := c.post("/v1/backends/refresh", nil, &resp)
	return resp.Report, resp.Backends, err
}

// TestBackend вызывает один backend в обход engine.
func (c *Client) TestBackend(req TestCallRequest) (*TestCallResponse, error) {
	var resp TestCallResponse
	err := c.post("/v1/backends/test", req, &resp)
	return &resp, err
}

// --- Runs ---

// ListRuns возвращает журнал runs.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunSummary, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var runs []RunSummary
	err := c.list("/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		// Workflow из файла отправляется как есть
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// checkError превращает ответ 4xx/5xx в *APIError.
func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
