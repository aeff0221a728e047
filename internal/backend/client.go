package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/telemetry"
)

// Request — запрос к backend'у, собранный resolver'ом.
type Request struct {
	// Role — роль основного сообщения.
	Role domain.Role

	// Content — текст основного сообщения.
	Content string

	// Messages — заранее заданные сообщения перед основным.
	Messages []domain.Message

	// Parameters — проверенные параметры вызова.
	Parameters map[string]any

	// Tools — описание инструментов (только HTTP backend'ы).
	Tools []map[string]any

	// Model — модель для HTTP backend'ов.
	Model string
}

// Response — нормализованный ответ backend'а.
type Response struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Client — единый интерфейс вызова backend'а любого вида.
//
// Ошибки возвращаются как *domain.BackendError.
type Client interface {
	Invoke(ctx context.Context, backend domain.BackendDescriptor, req *Request) (*Response, error)
}

// ClientFunc — адаптер функции к интерфейсу Client.
type ClientFunc func(ctx context.Context, backend domain.BackendDescriptor, req *Request) (*Response, error)

// Invoke вызывает f.
func (f ClientFunc) Invoke(ctx context.Context, backend domain.BackendDescriptor, req *Request) (*Response, error) {
	return f(ctx, backend, req)
}

// Dispatcher выбирает клиента по виду backend'а.
//
// Потокобезопасен.
type Dispatcher struct {
	mu      sync.RWMutex
	clients map[domain.BackendKind]Client
}

// NewDispatcher создаёт пустой Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		clients: make(map[domain.BackendKind]Client),
	}
}

// Register регистрирует клиента для вида backend'а.
// Если клиент уже есть, он будет перезаписан.
func (d *Dispatcher) Register(kind domain.BackendKind, client Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[kind] = client
}

// Has проверяет, зарегистрирован ли клиент для вида.
func (d *Dispatcher) Has(kind domain.BackendKind) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.clients[kind]
	return ok
}

// Invoke вызывает клиента, соответствующего backend.Kind.
func (d *Dispatcher) Invoke(ctx context.Context, backend domain.BackendDescriptor, req *Request) (*Response, error) {
	d.mu.RLock()
	client, ok := d.clients[backend.Kind]
	d.mu.RUnlock()

	if !ok {
		err := domain.NewBackendError(domain.KindProtocol, backend.ID,
			fmt.Sprintf("no client for backend kind %q", backend.Kind), nil)
		telemetry.BackendCalls.WithLabelValues(string(backend.Kind), string(domain.KindProtocol)).Inc()
		return nil, err
	}

	resp, err := client.Invoke(ctx, backend, req)
	telemetry.BackendCalls.WithLabelValues(string(backend.Kind), outcome(err)).Inc()
	return resp, err
}

// outcome возвращает метку результата вызова для метрик.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(KindOf(err))
}
