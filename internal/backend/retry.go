package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/telemetry"
)

// CallOptions — параметры одного вызова backend'а с retry.
type CallOptions struct {
	// Timeout — лимит одной попытки (0 — без отдельного лимита).
	Timeout time.Duration

	// Retry — политика повторов (nil — одна попытка).
	Retry *domain.RetryPolicy

	Logger *slog.Logger
}

// Call вызывает backend с таймаутом на попытку и ограниченным retry.
//
// Повторяются только ошибки unreachable, transport и timeout.
// Возвращает ответ, количество сделанных попыток и последнюю ошибку.
func Call(ctx context.Context, client Client, backend domain.BackendDescriptor, req *Request, opts CallOptions) (*Response, int, error) {
	logger := telemetry.OrDefault(opts.Logger)
	maxAttempts := opts.Retry.Attempts()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := invokeOnce(ctx, client, backend, req, opts.Timeout)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err

		// Внешняя отмена или неповторяемая ошибка — выходим сразу
		if ctx.Err() != nil || !IsRetryable(err) || attempt == maxAttempts {
			return nil, attempt, lastErr
		}

		delay := calculateBackoff(attempt, opts.Retry)

		logger.Debug("retrying backend call",
			"backend", backend.ID,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)

		// Ждём с учётом context
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempt, lastErr
		}
	}

	return nil, maxAttempts, lastErr
}

// invokeOnce выполняет одну попытку с собственным таймаутом.
func invokeOnce(ctx context.Context, client Client, backend domain.BackendDescriptor, req *Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return client.Invoke(ctx, backend, req)
}

// calculateBackoff вычисляет задержку перед повтором.
func calculateBackoff(attempt int, policy *domain.RetryPolicy) time.Duration {
	if policy == nil {
		return time.Second
	}

	initialDelay := time.Duration(policy.InitialDelayMs) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	maxDelay := time.Duration(policy.MaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := initialDelay
	if policy.Backoff == "exponential" {
		// delay = initialDelay * 2^(attempt-1)
		for i := 1; i < attempt && delay < maxDelay; i++ {
			delay *= 2
		}
	}

	return min(delay, maxDelay)
}
