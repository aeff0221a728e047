// Package backend содержит клиентов chat backend'ов.
//
// Структура:
//   - client.go       — Request/Response, интерфейс Client и Dispatcher по виду backend'а
//   - http_client.go  — локальный и внешние серверы: POST {endpoint}/v1/chat
//   - agent_client.go — удалённые агенты: JSON-RPC кадры поверх WebSocket
//   - pool.go         — пул WebSocket соединений агентов
//   - retry.go        — таймаут вызова и ограниченный retry
//   - errors.go       — классификация сетевых ошибок в BackendError
//
// Все клиенты возвращают нормализованный Response либо *domain.BackendError.
package backend
