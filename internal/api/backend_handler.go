package api

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/shaiso/Relay/internal/backend"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/resolver"
)

// ListBackends возвращает снимок реестра.
// GET /v1/backends, GET /v1/mcp-servers
func (h *Handler) ListBackends(w http.ResponseWriter, r *http.Request) {
	backends := h.registry.List()
	Success(w, BackendListResponse{Backends: backends, Total: len(backends)})
}

// RefreshBackends обновляет реестр немедленно.
// POST /v1/backends/refresh
func (h *Handler) RefreshBackends(w http.ResponseWriter, r *http.Request) {
	report, err := h.registry.Refresh(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, RefreshResponse{Report: report, Backends: h.registry.List()})
}

// TestBackend вызывает один backend в обход engine.
// POST /v1/backends/test
func (h *Handler) TestBackend(w http.ResponseWriter, r *http.Request) {
	var req TestCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		BadRequest(w, "prompt is required")
		return
	}

	if HandleBackendError(w, h.logger, resolver.ValidateParameters(req.Parameters)) {
		return
	}

	desc, err := h.selectBackend(&req)
	if HandleBackendError(w, h.logger, err) {
		return
	}

	params := maps.Clone(req.Parameters)
	delete(params, resolver.ParamIncludeMetadata)

	call := &backend.Request{
		Role:       domain.RoleUser,
		Content:    req.Prompt,
		Parameters: params,
	}
	if model, ok := params[resolver.ParamModel].(string); ok {
		call.Model = model
	}

	start := time.Now()
	resp, attempts, err := backend.Call(r.Context(), h.client, desc, call, backend.CallOptions{
		Timeout: h.testTimeout,
		Logger:  h.logger,
	})
	if HandleBackendError(w, h.logger, err) {
		return
	}

	Success(w, TestCallResponse{
		BackendID:   desc.ID,
		BackendKind: desc.Kind,
		Text:        resp.Text,
		Metadata:    resp.Metadata,
		Attempts:    attempts,
		DurationMs:  time.Since(start).Milliseconds(),
	})
}

// selectBackend применяет тот же приоритет, что и resolver: agent > server > local.
// Агент вне каталога вызывается ad hoc.
func (h *Handler) selectBackend(req *TestCallRequest) (domain.BackendDescriptor, error) {
	switch {
	case strings.TrimSpace(req.AgentID) != "":
		desc, err := h.registry.LookupAgent(req.AgentID)
		if errors.Is(err, registry.ErrBackendNotFound) {
			return h.registry.AdHocAgent(req.AgentID), nil
		}
		return desc, err
	case strings.TrimSpace(req.BackendID) != "":
		return h.registry.LookupServer(req.BackendID)
	default:
		return h.registry.Local()
	}
}
