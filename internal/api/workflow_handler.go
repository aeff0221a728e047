package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/orchestrator"
	"github.com/shaiso/Relay/internal/telemetry"
)

// Health возвращает статус сервиса.
// GET /
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: ServiceName})
}

// SubmitWorkflow выполняет workflow и возвращает WorkflowResult.
// POST /v1/workflow[?async=true]
//
// С async=true run сохраняется в журнал и ставится в очередь, ответ 202.
func (h *Handler) SubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	async := false
	if v := r.URL.Query().Get("async"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			BadRequest(w, "invalid async flag")
			return
		}
		async = parsed
	}

	var req domain.WorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if async {
		h.enqueueWorkflow(w, r, &req)
		return
	}

	result, err := h.runner.Run(r.Context(), &req)
	if HandleWorkflowError(w, h.logger, err) {
		return
	}

	h.record(r.Context(), &req, result)

	Success(w, result)
}

// enqueueWorkflow сохраняет PENDING run и публикует workflow.submitted.
func (h *Handler) enqueueWorkflow(w http.ResponseWriter, r *http.Request, req *domain.WorkflowRequest) {
	if h.runs == nil || h.submitter == nil {
		NotConfigured(w, "async execution requires a run journal and a message queue")
		return
	}

	// Невалидный запрос отклоняется сразу, а не в worker'е
	if HandleWorkflowError(w, h.logger, h.runner.Validate(req)) {
		return
	}
	if !h.registry.Usable() {
		HandleWorkflowError(w, h.logger, orchestrator.ErrNoBackends)
		return
	}

	run := domain.NewRun(*req)
	if err := h.runs.Create(r.Context(), run); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	// Без сообщения run подхватит polling worker'а
	if err := h.submitter.PublishWorkflowSubmitted(r.Context(), run.ID); err != nil {
		telemetry.FromContext(r.Context()).Warn("failed to publish workflow.submitted", "run_id", run.ID, "error", err)
	}

	Accepted(w, RunFromDomain(*run))
}

// record сохраняет синхронный run в журнал, если он настроен.
func (h *Handler) record(ctx context.Context, req *domain.WorkflowRequest, result *domain.WorkflowResult) {
	if h.runs == nil {
		return
	}

	run := domain.NewRun(*req)
	run.ID = result.RunID
	run.Finish(result)

	if err := h.runs.Create(context.WithoutCancel(ctx), run); err != nil {
		telemetry.FromContext(ctx).Warn("failed to record run", "run_id", run.ID, "error", err)
	}
}
