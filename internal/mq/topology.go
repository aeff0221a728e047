package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeWorkflows Exchange = "relay.workflows"
	ExchangeDLQ       Exchange = "relay.dlq"
)

// Queues — имена очередей.
const (
	QueueWorkflowsSubmitted Queue = "workflows.submitted"
	QueueWorkflowsFinished  Queue = "workflows.finished"
	QueueDLQWorkflows       Queue = "dlq.workflows"
)

// Routing keys.
const (
	RoutingKeySubmitted    RoutingKey = "submitted"
	RoutingKeyFinished     RoutingKey = "finished"
	RoutingKeyDLQWorkflows RoutingKey = "workflows"
)

// exchangeSpec — объявление обменника.
type exchangeSpec struct {
	name Exchange
	kind string
}

// queueSpec — объявление очереди.
type queueSpec struct {
	name Queue
	args amqp.Table
}

// bindingSpec — привязка очереди к обменнику.
type bindingSpec struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полный набор объявлений Relay.
func topology() ([]exchangeSpec, []queueSpec, []bindingSpec) {
	exchanges := []exchangeSpec{
		{ExchangeWorkflows, "direct"},
		{ExchangeDLQ, "direct"},
	}

	// Отклонённые без requeue отправки уходят в DLQ
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQWorkflows),
	}

	queues := []queueSpec{
		{QueueWorkflowsSubmitted, dlqArgs},
		{QueueWorkflowsFinished, nil},
		{QueueDLQWorkflows, nil},
	}

	bindings := []bindingSpec{
		{QueueWorkflowsSubmitted, RoutingKeySubmitted, ExchangeWorkflows},
		{QueueWorkflowsFinished, RoutingKeyFinished, ExchangeWorkflows},
		{QueueDLQWorkflows, RoutingKeyDLQWorkflows, ExchangeDLQ},
	}

	return exchanges, queues, bindings
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Relay RabbitMQ Topology:

    relay.workflows (direct)
    ├── workflows.submitted [routing: submitted]
    │       Consumer: Worker
    │       DLQ: dlq.workflows
    └── workflows.finished [routing: finished]
            Consumer: external subscribers

    relay.dlq (direct)
    └── dlq.workflows [routing: workflows]
            Manual processing
  `
}
