package domain

import (
	"errors"
	"fmt"
)

// ErrorKind — вид ошибки внутри класса таксономии.
type ErrorKind string

// Виды ошибок разрешения шага.
const (
	KindUnknownBackend   ErrorKind = "unknown-backend"
	KindUnknownReference ErrorKind = "unknown-reference"
	KindBadParameter     ErrorKind = "bad-parameter"
)

// Виды ошибок вызова backend'а.
const (
	KindProtocol    ErrorKind = "protocol"
	KindUnreachable ErrorKind = "unreachable"
	KindTransport   ErrorKind = "transport"
	KindAuth        ErrorKind = "auth"
	KindTimeout     ErrorKind = "timeout"
)

// KindAborted — workflow прерван.
const KindAborted ErrorKind = "aborted"

// Классы ошибок, для проверки через errors.Is.
var (
	// ErrResolution — шаг не удалось разрешить в вызов backend'а.
	ErrResolution = errors.New("step resolution failed")

	// ErrBackend — вызов backend'а завершился ошибкой.
	ErrBackend = errors.New("backend call failed")

	// ErrEngine — ошибка уровня engine.
	ErrEngine = errors.New("workflow engine error")
)

// ResolutionError — ошибка разрешения шага.
type ResolutionError struct {
	Kind    ErrorKind
	Step    string
	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve step %q: %s: %s", e.Step, e.Kind, e.Message)
}

// Unwrap возвращает базовую ошибку.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с классом ErrResolution.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolution
}

// NewResolutionError создаёт ошибку разрешения шага.
func NewResolutionError(kind ErrorKind, step, message string, err error) *ResolutionError {
	return &ResolutionError{Kind: kind, Step: step, Message: message, Err: err}
}

// BackendError — ошибка вызова backend'а.
type BackendError struct {
	Kind    ErrorKind
	Backend string

	// StatusCode — HTTP код ответа, если он был получен.
	StatusCode int

	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *BackendError) Error() string {
	msg := fmt.Sprintf("backend %s: %s: %s", e.Backend, e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с классом ErrBackend.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// Retryable сообщает, имеет ли смысл повторить вызов.
// Ошибки протокола и авторизации не исчезают от повтора.
func (e *BackendError) Retryable() bool {
	switch e.Kind {
	case KindUnreachable, KindTransport, KindTimeout:
		return true
	default:
		return false
	}
}

// NewBackendError создаёт ошибку вызова backend'а.
func NewBackendError(kind ErrorKind, backend, message string, err error) *BackendError {
	return &BackendError{Kind: kind, Backend: backend, Message: message, Err: err}
}

// EngineError — ошибка уровня engine.
type EngineError struct {
	Kind    ErrorKind
	Message string
}

// Error реализует интерфейс error.
func (e *EngineError) Error() string {
	return fmt.Sprintf("workflow %s: %s", e.Kind, e.Message)
}

// Is сопоставляет ошибку с классом ErrEngine.
func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

// ErrorInfoFrom преобразует ошибку таксономии в ErrorInfo.
// Прочие ошибки считаются ошибками транспорта backend'а.
func ErrorInfoFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return &ErrorInfo{Type: "resolution", Kind: resErr.Kind, Message: err.Error()}
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return &ErrorInfo{Type: "backend", Kind: backendErr.Kind, Message: err.Error()}
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return &ErrorInfo{Type: "engine", Kind: engineErr.Kind, Message: err.Error()}
	}

	return &ErrorInfo{Type: "backend", Kind: KindTransport, Message: err.Error()}
}
