package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		RequestID(h.logger),
		Logging(h.logger),
		LimitBody(maxBodyBytes),
	)

	mux.Handle("GET /{$}", chain(http.HandlerFunc(h.Health)))

	// Workflows
	mux.Handle("POST /v1/workflow", chain(http.HandlerFunc(h.SubmitWorkflow)))

	// Backends
	mux.Handle("GET /v1/backends", chain(http.HandlerFunc(h.ListBackends)))
	mux.Handle("GET /v1/mcp-servers", chain(http.HandlerFunc(h.ListBackends)))
	mux.Handle("POST /v1/backends/refresh", chain(http.HandlerFunc(h.RefreshBackends)))
	mux.Handle("POST /v1/backends/test", chain(http.HandlerFunc(h.TestBackend)))

	// Runs
	mux.Handle("GET /v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /v1/runs/{id}", chain(http.HandlerFunc(h.GetRun)))
}
