package domain

import "encoding/json"

// WorkflowRequest — описание workflow, присланное клиентом.
//
// Запрос неизменяем после приёма: engine только читает его.
// Определения workflow не сохраняются, это транзитный payload.
type WorkflowRequest struct {
	// Input — исходный prompt, контекст первого шага.
	Input string `json:"input"`

	// Steps — упорядоченный список шагов.
	Steps []StepDefinition `json:"steps"`

	// FailurePolicy — политика по умолчанию для всех шагов (abort, если пусто).
	FailurePolicy FailurePolicy `json:"failure_policy,omitempty"`
}

// ContinuesOnFailure сообщает, продолжать ли workflow после сбоя шага.
// Явное значение шага важнее политики запроса.
func (r *WorkflowRequest) ContinuesOnFailure(step *StepDefinition) bool {
	if step.ContinueOnFailure != nil {
		return *step.ContinueOnFailure
	}
	return r.FailurePolicy == FailurePolicyContinue
}

// StepDefinition — один шаг workflow.
type StepDefinition struct {
	// Name — уникальное в рамках workflow имя, ключ для {{name}} ссылок.
	Name string `json:"name"`

	// Role — роль сообщения шага (user, если пусто).
	Role Role `json:"role,omitempty"`

	// AgentID — идентификатор удалённого агента. Имеет наивысший приоритет.
	AgentID string `json:"agent_id,omitempty"`

	// Server — идентификатор или URL внешнего сервера.
	Server string `json:"mcp_server,omitempty"`

	// Parameters — параметры вызова (temperature, max_tokens, ...).
	Parameters map[string]any `json:"parameters,omitempty"`

	// Content — явный текст шага. Если nil, берётся последний успешный вывод.
	Content *string `json:"content,omitempty"`

	// Messages — заранее заданные сообщения перед сообщением шага.
	Messages []Message `json:"messages,omitempty"`

	// Tools — описание инструментов, передаётся HTTP backend'ам как есть.
	Tools []map[string]any `json:"tools,omitempty"`

	// ContinueOnFailure переопределяет FailurePolicy запроса для шага.
	ContinueOnFailure *bool `json:"continue_on_failure,omitempty"`

	// TimeoutSec — таймаут одного вызова backend'а.
	TimeoutSec int `json:"timeout_sec,omitempty"`

	// Retry — ограниченный retry вызова backend'а.
	Retry *RetryPolicy `json:"retry,omitempty"`
}

// UnmarshalJSON принимает также старые имена полей smithery_agent_id и smithery_params.
func (s *StepDefinition) UnmarshalJSON(data []byte) error {
	type plain StepDefinition
	aux := struct {
		*plain
		LegacyAgentID string         `json:"smithery_agent_id"`
		LegacyParams  map[string]any `json:"smithery_params"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if s.AgentID == "" {
		s.AgentID = aux.LegacyAgentID
	}
	if s.Parameters == nil && aux.LegacyParams != nil {
		s.Parameters = aux.LegacyParams
	}
	return nil
}

// Message — заранее заданное сообщение шага.
type Message struct {
	Role        Role   `json:"role,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// MaxRetryAttempts — верхняя граница RetryPolicy.MaxAttempts.
const MaxRetryAttempts = 10

// RetryPolicy — политика повторных попыток вызова backend'а.
type RetryPolicy struct {
	// MaxAttempts — максимальное количество попыток (включая первую).
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Backoff — стратегия задержки: "fixed", "exponential".
	Backoff string `json:"backoff,omitempty"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`
}

// Attempts возвращает число попыток, не меньше одной.
func (p *RetryPolicy) Attempts() int {
	if p == nil || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
