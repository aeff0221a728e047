// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (engine, реестр, журнал, очередь)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (recovery, request id, logging, body limit)
//   - response.go         — унифицированные JSON-ответы и отображение ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - workflow_handler.go — POST /v1/workflow
//   - backend_handler.go  — /v1/backends, /v1/mcp-servers
//   - run_handler.go      — журнал /v1/runs
//
// Ответы оборачиваются в {"data": ...}, ошибки — в {"error": {"code", "message"}}.
// Невалидный workflow даёт 400 VALIDATION_FAILED, пустой реестр — 503 NO_BACKENDS.
package api
