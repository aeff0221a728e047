package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/registry"
)

// Health

// HealthResponse — ответ GET /.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Run DTOs

// RunResponse — запись журнала.
type RunResponse struct {
	ID         uuid.UUID              `json:"id"`
	Status     domain.RunStatus       `json:"status"`
	Request    domain.WorkflowRequest `json:"request"`
	Result     *domain.WorkflowResult `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Status:     r.Status,
		Request:    r.Request,
		Result:     r.Result,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		CreatedAt:  r.CreatedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}

// RunSummary — краткая запись журнала для списка.
type RunSummary struct {
	ID          uuid.UUID        `json:"id"`
	Status      domain.RunStatus `json:"status"`
	Steps       int              `json:"steps"`
	FinalOutput string           `json:"final_output,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	DurationMs  int64            `json:"duration_ms,omitempty"`
}

// RunSummaryFromDomain конвертирует domain.Run в RunSummary.
func RunSummaryFromDomain(r domain.Run) RunSummary {
	s := RunSummary{
		ID:         r.ID,
		Status:     r.Status,
		Steps:      len(r.Request.Steps),
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
	if r.Result != nil {
		s.FinalOutput = r.Result.FinalOutput
	}
	return s
}

// Backend DTOs

// BackendListResponse — снимок реестра.
type BackendListResponse struct {
	Backends []domain.BackendDescriptor `json:"backends"`
	Total    int                        `json:"total"`
}

// RefreshResponse — итог обновления реестра.
type RefreshResponse struct {
	Report   *registry.Report           `json:"report"`
	Backends []domain.BackendDescriptor `json:"backends"`
}

// TestCallRequest — диагностический вызов backend'а в обход engine.
type TestCallRequest struct {
	// BackendID — ID или URL HTTP backend'а.
	BackendID string `json:"backend_id,omitempty"`

	// AgentID — идентификатор удалённого агента. Важнее BackendID.
	AgentID string `json:"agent_id,omitempty"`

	Prompt     string         `json:"prompt"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// TestCallResponse — нормализованный ответ backend'а.
type TestCallResponse struct {
	BackendID   string             `json:"backend_id"`
	BackendKind domain.BackendKind `json:"backend_kind"`
	Text        string             `json:"text"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Attempts    int                `json:"attempts"`
	DurationMs  int64              `json:"duration_ms"`
}
