// Package resolver превращает шаг workflow в готовый вызов backend'а.
//
// Resolver выбирает backend по приоритету agent_id > mcp_server > local,
// подставляет выводы предыдущих шагов в содержимое и проверяет
// известные параметры. Неизвестные параметры передаются как есть.
package resolver

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/shaiso/Relay/internal/backend"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
)

// Служебные параметры шага.
const (
	// ParamIncludeMetadata — передать метаданные последнего успешного шага.
	ParamIncludeMetadata = "include_metadata"

	// ParamContextMetadata — ключ, под которым метаданные попадают в параметры.
	ParamContextMetadata = "context_metadata"

	// ParamModel — модель для HTTP backend'ов.
	ParamModel = "model"
)

// Backends — источник дескрипторов backend'ов.
type Backends interface {
	Local() (domain.BackendDescriptor, error)
	LookupServer(selector string) (domain.BackendDescriptor, error)
	LookupAgent(id string) (domain.BackendDescriptor, error)
}

// Config — конфигурация Resolver.
type Config struct {
	Backends Backends

	// DefaultTimeout — таймаут вызова, если шаг его не задал.
	DefaultTimeout time.Duration

	// DefaultRetry — политика retry, если шаг её не задал.
	DefaultRetry *domain.RetryPolicy
}

// Resolver — разрешает шаги в вызовы.
type Resolver struct {
	backends       Backends
	defaultTimeout time.Duration
	defaultRetry   *domain.RetryPolicy
}

// New создаёт Resolver.
func New(cfg Config) *Resolver {
	return &Resolver{
		backends:       cfg.Backends,
		defaultTimeout: cfg.DefaultTimeout,
		defaultRetry:   cfg.DefaultRetry,
	}
}

// Invocation — вызов backend'а, готовый к выполнению.
type Invocation struct {
	Backend domain.BackendDescriptor
	Request *backend.Request
	Timeout time.Duration
	Retry   *domain.RetryPolicy
}

// Resolve строит вызов для шага по текущему контексту run.
//
// Ошибки — *domain.ResolutionError видов unknown-backend,
// unknown-reference и bad-parameter.
func (r *Resolver) Resolve(step *domain.StepDefinition, ec *engine.ExecutionContext) (*Invocation, error) {
	// 1. Backend
	desc, err := r.selectBackend(step)
	if err != nil {
		return nil, err
	}

	// 2. Параметры
	if err := ValidateParameters(step.Parameters); err != nil {
		var resErr *domain.ResolutionError
		if errors.As(err, &resErr) {
			resErr.Step = step.Name
		}
		return nil, err
	}

	// 3. Содержимое
	content, err := r.content(step, ec)
	if err != nil {
		return nil, err
	}

	req := &backend.Request{
		Role:       step.Role.OrDefault(),
		Content:    content,
		Parameters: r.parameters(step, ec),
	}
	if model, ok := step.Parameters[ParamModel].(string); ok {
		req.Model = model
	}

	// Заданные сообщения и инструменты понимают только HTTP backend'ы
	if desc.IsHTTP() {
		messages, err := interpolateMessages(step, ec)
		if err != nil {
			return nil, err
		}
		req.Messages = messages
		req.Tools = step.Tools
	}

	inv := &Invocation{
		Backend: desc,
		Request: req,
		Timeout: r.defaultTimeout,
		Retry:   r.defaultRetry,
	}
	if step.TimeoutSec > 0 {
		inv.Timeout = time.Duration(step.TimeoutSec) * time.Second
	}
	if step.Retry != nil {
		inv.Retry = step.Retry
	}

	return inv, nil
}

// selectBackend применяет приоритет agent_id > mcp_server > local.
func (r *Resolver) selectBackend(step *domain.StepDefinition) (domain.BackendDescriptor, error) {
	var (
		desc     domain.BackendDescriptor
		err      error
		selector string
	)

	switch {
	case step.AgentID != "":
		selector = step.AgentID
		desc, err = r.backends.LookupAgent(step.AgentID)
	case step.Server != "":
		selector = step.Server
		desc, err = r.backends.LookupServer(step.Server)
	default:
		selector = "local"
		desc, err = r.backends.Local()
	}

	if err != nil {
		return domain.BackendDescriptor{}, domain.NewResolutionError(domain.KindUnknownBackend, step.Name,
			fmt.Sprintf("backend %q is not registered", selector), err)
	}
	return desc, nil
}

// content возвращает текст основного сообщения шага.
// Явное содержимое интерполируется, иначе берётся последний успешный вывод.
func (r *Resolver) content(step *domain.StepDefinition, ec *engine.ExecutionContext) (string, error) {
	if step.Content == nil {
		return ec.LatestOutput(), nil
	}

	text, err := engine.Interpolate(*step.Content, ec.Lookup)
	if err != nil {
		return "", referenceError(step.Name, err)
	}
	return text, nil
}

// parameters копирует параметры шага без служебных ключей.
func (r *Resolver) parameters(step *domain.StepDefinition, ec *engine.ExecutionContext) map[string]any {
	if len(step.Parameters) == 0 {
		return nil
	}

	params := maps.Clone(step.Parameters)
	include, _ := params[ParamIncludeMetadata].(bool)
	delete(params, ParamIncludeMetadata)

	if include {
		if latest, ok := ec.Latest(); ok && latest.Metadata != nil {
			params[ParamContextMetadata] = maps.Clone(latest.Metadata)
		}
	}

	if len(params) == 0 {
		return nil
	}
	return params
}

// referenceError оборачивает ошибку интерполяции.
func referenceError(stepName string, err error) error {
	return domain.NewResolutionError(domain.KindUnknownReference, stepName, err.Error(), err)
}

// interpolateMessages подставляет ссылки в заданные сообщения шага.
// Определение шага не изменяется.
func interpolateMessages(step *domain.StepDefinition, ec *engine.ExecutionContext) ([]domain.Message, error) {
	if len(step.Messages) == 0 {
		return nil, nil
	}

	messages := make([]domain.Message, 0, len(step.Messages))
	for _, m := range step.Messages {
		text, err := engine.Interpolate(m.Content, ec.Lookup)
		if err != nil {
			return nil, referenceError(step.Name, err)
		}
		m.Content = text
		messages = append(messages, m)
	}
	return messages, nil
}
