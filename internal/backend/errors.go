package backend

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/gorilla/websocket"
	"github.com/shaiso/Relay/internal/domain"
)

// KindOf возвращает вид ошибки backend'а.
// Для ошибок вне таксономии — transport.
func KindOf(err error) domain.ErrorKind {
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Kind
	}
	return domain.KindTransport
}

// IsRetryable сообщает, имеет ли смысл повторить вызов после err.
func IsRetryable(err error) bool {
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Retryable()
	}
	return false
}

// classifyCallError превращает ошибку сети/контекста в BackendError.
//
// Истечение deadline — timeout, отмена — transport,
// остальное — fallback (unreachable для установки соединения,
// transport для обмена по уже открытому соединению).
func classifyCallError(ctx context.Context, backendID, op string, err error, fallback domain.ErrorKind) *domain.BackendError {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return domain.NewBackendError(domain.KindTimeout, backendID, op+": deadline exceeded", err)

	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return domain.NewBackendError(domain.KindTransport, backendID, op+": call cancelled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewBackendError(domain.KindTimeout, backendID, op+": i/o timeout", err)
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NewBackendError(domain.KindTransport, backendID, op+": connection closed", err)
	}

	return domain.NewBackendError(fallback, backendID, op, err)
}
