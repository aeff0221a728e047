package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Relay/internal/backend"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
	"github.com/shaiso/Relay/internal/resolver"
	"github.com/shaiso/Relay/internal/telemetry"
)

// Backends — реестр, с которым работает Engine.
type Backends interface {
	resolver.Backends

	// Usable сообщает, есть ли хотя бы один backend не в статусе unavailable.
	Usable() bool
}

// Config — конфигурация Engine.
type Config struct {
	Backends Backends
	Client   backend.Client

	// MaxSteps — ограничение длины workflow (default: engine.DefaultMaxSteps).
	MaxSteps int

	// WorkflowTimeout — общий лимит времени run (0 — без лимита).
	WorkflowTimeout time.Duration

	// DefaultTimeout — таймаут вызова backend'а, если шаг его не задал.
	DefaultTimeout time.Duration

	// DefaultRetry — политика retry, если шаг её не задал.
	DefaultRetry *domain.RetryPolicy

	Logger *slog.Logger
}

// Engine выполняет workflow.
//
// Engine не хранит состояние runs: всё состояние run живёт в RunState,
// созданном на время Execute.
type Engine struct {
	backends        Backends
	client          backend.Client
	resolver        *resolver.Resolver
	maxSteps        int
	workflowTimeout time.Duration
	logger          *slog.Logger
}

// New создаёт Engine.
func New(cfg Config) *Engine {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = engine.DefaultMaxSteps
	}

	return &Engine{
		backends: cfg.Backends,
		client:   cfg.Client,
		resolver: resolver.New(resolver.Config{
			Backends:       cfg.Backends,
			DefaultTimeout: cfg.DefaultTimeout,
			DefaultRetry:   cfg.DefaultRetry,
		}),
		maxSteps:        maxSteps,
		workflowTimeout: cfg.WorkflowTimeout,
		logger:          telemetry.OrDefault(cfg.Logger),
	}
}

// Validate проверяет запрос без выполнения.
func (e *Engine) Validate(req *domain.WorkflowRequest) error {
	return engine.Validate(req, e.maxSteps)
}

// Run выполняет workflow с новым run ID.
func (e *Engine) Run(ctx context.Context, req *domain.WorkflowRequest) (*domain.WorkflowResult, error) {
	return e.Execute(ctx, uuid.New(), req)
}

// Execute выполняет workflow с заданным run ID.
//
// Возвращает ошибку только если выполнение не началось:
// *engine.ValidationError для невалидного запроса и ErrNoBackends.
// Сбои шагов и отмена ctx отражаются в WorkflowResult (статус ABORTED).
func (e *Engine) Execute(ctx context.Context, runID uuid.UUID, req *domain.WorkflowRequest) (*domain.WorkflowResult, error) {
	// 1. Валидация до выполнения
	if err := e.Validate(req); err != nil {
		return nil, err
	}

	// 2. Без backend'ов выполнять нечего
	if !e.backends.Usable() {
		return nil, ErrNoBackends
	}

	logger := telemetry.WithRunID(e.logger, runID.String())

	state := NewRunState(runID, req)
	if err := state.Start(); err != nil {
		return nil, err
	}

	if e.workflowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.workflowTimeout)
		defer cancel()
	}

	logger.Info("workflow started", "steps", len(req.Steps))

	// 3. Шаги строго по порядку
	for i := range req.Steps {
		step := &req.Steps[i]

		if err := ctx.Err(); err != nil {
			_ = state.Abort(abortError(err))
			break
		}

		result, stepErr := e.executeStep(ctx, logger, i, step, state.Context)
		state.Record(result)

		if stepErr == nil {
			continue
		}

		// Отмена во время вызова — прерывание run, а не сбой шага
		if err := ctx.Err(); err != nil {
			_ = state.Abort(abortError(err))
			break
		}

		if req.ContinuesOnFailure(step) {
			continue
		}

		_ = state.Abort(stepErr)
		break
	}

	if state.Status() == domain.RunStatusRunning {
		_ = state.Complete()
	}

	// 4. Итог
	result := state.Result()
	telemetry.WorkflowRuns.WithLabelValues(string(result.Status)).Inc()

	attrs := []any{
		"status", result.Status,
		"steps", len(result.Steps),
		"failed_steps", result.FailedSteps(),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}
	if result.Error != nil {
		attrs = append(attrs, "error", result.Error.Message)
		logger.Warn("workflow aborted", attrs...)
	} else {
		logger.Info("workflow completed", attrs...)
	}

	return result, nil
}

// executeStep выполняет один шаг: resolve → invoke.
// Ошибка шага возвращается вторым значением и уже отражена в StepResult.
func (e *Engine) executeStep(ctx context.Context, logger *slog.Logger, index int, step *domain.StepDefinition, ec *engine.ExecutionContext) (domain.StepResult, error) {
	start := time.Now()
	logger = telemetry.WithStep(logger, step.Name, index)

	result := domain.StepResult{StepName: step.Name}

	fail := func(err error) (domain.StepResult, error) {
		result.Status = domain.StepStatusFailed
		result.Error = domain.ErrorInfoFrom(err)
		result.DurationMs = time.Since(start).Milliseconds()
		observeStep(result)
		logger.Warn("step failed", "error", err, "attempts", result.Attempts)
		return result, err
	}

	// 1. Resolve
	inv, err := e.resolver.Resolve(step, ec)
	if err != nil {
		return fail(err)
	}

	result.BackendUsed = inv.Backend.ID
	result.BackendKind = inv.Backend.Kind
	logger = telemetry.WithBackend(logger, inv.Backend.ID, string(inv.Backend.Kind))

	logger.Debug("step started", "timeout", inv.Timeout)

	// 2. Invoke
	resp, attempts, err := backend.Call(ctx, e.client, inv.Backend, inv.Request, backend.CallOptions{
		Timeout: inv.Timeout,
		Retry:   inv.Retry,
		Logger:  logger,
	})
	result.Attempts = attempts
	if err != nil {
		return fail(err)
	}

	// 3. Успех
	result.Status = domain.StepStatusOK
	result.OutputText = resp.Text
	result.Metadata = resp.Metadata
	result.DurationMs = time.Since(start).Milliseconds()
	observeStep(result)

	logger.Info("step completed", "attempts", attempts, "duration_ms", result.DurationMs)

	return result, nil
}

// observeStep записывает длительность шага.
func observeStep(result domain.StepResult) {
	kind := string(result.BackendKind)
	if kind == "" {
		kind = "unresolved"
	}
	telemetry.StepDuration.
		WithLabelValues(kind, string(result.Status)).
		Observe(float64(result.DurationMs) / 1000)
}

// abortError описывает прерывание run отменой или общим таймаутом.
func abortError(err error) error {
	msg := "workflow cancelled"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "workflow deadline exceeded"
	}
	return &domain.EngineError{Kind: domain.KindAborted, Message: msg}
}
