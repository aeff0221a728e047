package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/engine"
	"github.com/shaiso/Relay/internal/orchestrator"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/repo"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest       ErrorCode = "BAD_REQUEST"
	ErrCodeValidation       ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeBackendNotFound  ErrorCode = "BACKEND_NOT_FOUND"
	ErrCodeBackendError     ErrorCode = "BACKEND_ERROR"
	ErrCodeBackendTimeout   ErrorCode = "BACKEND_TIMEOUT"
	ErrCodeNoBackends       ErrorCode = "NO_BACKENDS"
	ErrCodeNotConfigured    ErrorCode = "NOT_CONFIGURED"
	ErrCodeInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Step    string    `json:"step,omitempty"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Accepted отправляет ответ о принятии в обработку (202).
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, DataResponse{Data: data})
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// NotConfigured отправляет ошибку 503 для отключённой функции.
func NotConfigured(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, message)
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// ValidationFailed отправляет ошибку 400 с полем и шагом.
func ValidationFailed(w http.ResponseWriter, err *engine.ValidationError) {
	JSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
		Code:    ErrCodeValidation,
		Message: err.Error(),
		Field:   err.Field,
		Step:    err.Step,
	}})
}

// HandleRepoError преобразует ошибку репозитория в HTTP ответ.
func HandleRepoError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, repo.ErrNotFound) {
		NotFound(w, notFoundMsg)
		return true
	}

	InternalError(w, logger, err)
	return true
}

// HandleWorkflowError преобразует ошибку до начала выполнения в HTTP ответ.
func HandleWorkflowError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	var valErr *engine.ValidationError
	switch {
	case errors.As(err, &valErr):
		ValidationFailed(w, valErr)
	case errors.Is(err, orchestrator.ErrNoBackends):
		Error(w, http.StatusServiceUnavailable, ErrCodeNoBackends, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}

// HandleBackendError преобразует ошибку тестового вызова в HTTP ответ.
func HandleBackendError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	var backendErr *domain.BackendError
	switch {
	case errors.Is(err, registry.ErrBackendNotFound):
		Error(w, http.StatusNotFound, ErrCodeBackendNotFound, err.Error())
	case errors.Is(err, domain.ErrResolution):
		Error(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.As(err, &backendErr) && backendErr.Kind == domain.KindTimeout:
		Error(w, http.StatusGatewayTimeout, ErrCodeBackendTimeout, err.Error())
	case errors.As(err, &backendErr):
		Error(w, http.StatusBadGateway, ErrCodeBackendError, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}
