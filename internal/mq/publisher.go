package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/telemetry"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeWorkflowSubmitted MessageType = "workflow.submitted"
	MessageTypeWorkflowFinished  MessageType = "workflow.finished"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// WorkflowSubmittedPayload — run поставлен в очередь на выполнение.
type WorkflowSubmittedPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// WorkflowFinishedPayload — run завершён.
type WorkflowFinishedPayload struct {
	RunID       uuid.UUID        `json:"run_id"`
	Status      domain.RunStatus `json:"status"`
	FinalOutput string           `json:"final_output"`
	Error       string           `json:"error,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: telemetry.OrDefault(logger),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	publishing, err := encode(msg)
	if err != nil {
		return err
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			publishing,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishWorkflowSubmitted ставит run в очередь worker'а.
func (p *Publisher) PublishWorkflowSubmitted(ctx context.Context, runID uuid.UUID) error {
	msg := NewMessage(MessageTypeWorkflowSubmitted, WorkflowSubmittedPayload{RunID: runID})
	return p.Publish(ctx, ExchangeWorkflows, RoutingKeySubmitted, msg)
}

// PublishWorkflowFinished сообщает подписчикам о завершении run.
func (p *Publisher) PublishWorkflowFinished(ctx context.Context, run *domain.Run) error {
	payload := WorkflowFinishedPayload{
		RunID:  run.ID,
		Status: run.Status,
		Error:  run.Error,
	}
	if run.Result != nil {
		payload.FinalOutput = run.Result.FinalOutput
	}

	msg := NewMessage(MessageTypeWorkflowFinished, payload)
	return p.Publish(ctx, ExchangeWorkflows, RoutingKeyFinished, msg)
}

// encode упаковывает сообщение в persistent AMQP publishing.
func encode(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}
