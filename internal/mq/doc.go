// Package mq — очередь асинхронных workflow поверх RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим переподключением
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий workflow
//   - consumer.go   — потребление с ack/nack и DLQ
//
// Типы сообщений:
//   - workflow.submitted — run поставлен в очередь (?async=true)
//   - workflow.finished  — run завершён, несёт статус и final_output
//
// Exchanges:
//   - relay.workflows — события workflow
//   - relay.dlq       — dead letter queue
package mq
