package engine

import (
	"fmt"

	"github.com/shaiso/Relay/internal/domain"
)

// DefaultMaxSteps — ограничение длины workflow по умолчанию.
const DefaultMaxSteps = 32

// Validate выполняет полную валидацию WorkflowRequest до выполнения.
//
// Проверяет:
// - Наличие шагов и их количество (maxSteps <= 0 — DefaultMaxSteps)
// - Непустые и уникальные имена шагов
// - Роли шага и заранее заданных сообщений
// - Политику ошибок, таймауты и retry
//
// Ссылки {{name}} здесь не проверяются: они разрешаются во время выполнения,
// так как зависят от успешности предыдущих шагов.
func Validate(req *domain.WorkflowRequest, maxSteps int) error {
	if req == nil || len(req.Steps) == 0 {
		return NewValidationError("", "steps", "workflow has no steps", ErrEmptySteps)
	}

	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if len(req.Steps) > maxSteps {
		return NewValidationError("", "steps",
			fmt.Sprintf("workflow has %d steps, limit is %d", len(req.Steps), maxSteps), ErrTooManySteps)
	}

	if !req.FailurePolicy.IsValid() {
		return NewValidationError("", "failure_policy",
			fmt.Sprintf("unknown failure policy: %s", req.FailurePolicy), ErrInvalidPolicy)
	}

	names := make(map[string]bool, len(req.Steps))
	for i := range req.Steps {
		if err := ValidateStep(&req.Steps[i], names); err != nil {
			return err
		}
	}

	return nil
}

// ValidateStep валидирует один шаг.
// names — уже встреченные имена шагов (для проверки уникальности).
func ValidateStep(step *domain.StepDefinition, names map[string]bool) error {
	if step.Name == "" {
		return NewValidationError("", "name", "step has empty name", ErrEmptyStepName)
	}

	if names[step.Name] {
		return NewValidationError(step.Name, "name",
			fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
	}
	names[step.Name] = true

	if !step.Role.IsValid() {
		return NewValidationError(step.Name, "role",
			fmt.Sprintf("invalid role: %s", step.Role), ErrInvalidRole)
	}

	for i, msg := range step.Messages {
		if !msg.Role.IsValid() {
			return NewValidationError(step.Name, "messages",
				fmt.Sprintf("message %d has invalid role: %s", i, msg.Role), ErrInvalidRole)
		}
	}

	if step.TimeoutSec < 0 {
		return NewValidationError(step.Name, "timeout_sec",
			"timeout must not be negative", ErrInvalidTimeout)
	}

	if err := validateRetry(step.Name, step.Retry); err != nil {
		return err
	}

	return nil
}

// validateRetry проверяет политику retry шага.
func validateRetry(stepName string, policy *domain.RetryPolicy) error {
	if policy == nil {
		return nil
	}

	if policy.MaxAttempts < 0 {
		return NewValidationError(stepName, "retry.max_attempts",
			"max_attempts must not be negative", ErrInvalidRetry)
	}
	if policy.MaxAttempts > domain.MaxRetryAttempts {
		return NewValidationError(stepName, "retry.max_attempts",
			fmt.Sprintf("max_attempts must not exceed %d", domain.MaxRetryAttempts), ErrInvalidRetry)
	}

	switch policy.Backoff {
	case "", "fixed", "exponential":
	default:
		return NewValidationError(stepName, "retry.backoff",
			fmt.Sprintf("unknown backoff: %s", policy.Backoff), ErrInvalidRetry)
	}

	if policy.InitialDelayMs < 0 || policy.MaxDelayMs < 0 {
		return NewValidationError(stepName, "retry",
			"delays must not be negative", ErrInvalidRetry)
	}

	return nil
}
