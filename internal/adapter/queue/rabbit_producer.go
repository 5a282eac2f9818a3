package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aq2208/storefront-api/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName           = "storefront.events"
	NotificationRoutingKey = "notification.created"
	NotificationQueue      = "notification.created.q"
)

// DeclareTopology sets up the exchange, queue, and binding. Both the producer
// and the consumer side call it; declarations are idempotent.
func DeclareTopology(ch *amqp.Channel) error {
	// 1. declare exchange (topic type, durable)
	if err := ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// 2. declare queue
	q, err := ch.QueueDeclare(
		NotificationQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// 3. bind queue → exchange
	if err := ch.QueueBind(
		q.Name,
		NotificationRoutingKey,
		ExchangeName,
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	return nil
}

type publisher interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
}

// RabbitProducer is the notification sink in "rabbitmq" mode: drafts are
// published and persisted later by NotificationHandler.
type RabbitProducer struct {
	pub publisher
}

// NewRabbitProducer declares the topology and puts ch in confirm mode.
func NewRabbitProducer(ch *amqp.Channel) (*RabbitProducer, error) {
	if err := DeclareTopology(ch); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return &RabbitProducer{pub: ch}, nil
}

// Emit publishes one notification and waits for the broker to confirm it.
func (p *RabbitProducer) Emit(ctx context.Context, userID string, n usecase.NotificationDraft) error {
	body, err := json.Marshal(usecase.NotificationMsg{
		UserID:   userID,
		OrderID:  n.OrderID,
		Type:     string(n.Type),
		Title:    n.Title,
		Message:  n.Message,
		Metadata: n.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // survive broker restarts
		Body:         body,
	}

	dc, err := p.pub.PublishWithDeferredConfirmWithContext(
		ctx,
		ExchangeName,
		NotificationRoutingKey,
		false, // mandatory
		false, // immediate
		pub,
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	// nil when the channel is not in confirm mode
	if dc == nil {
		return nil
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !ok {
		return fmt.Errorf("publish: broker nacked delivery %d", dc.DeliveryTag)
	}
	return nil
}

var _ usecase.NotificationSink = (*RabbitProducer)(nil)
