package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aq2208/storefront-api/internal/adapter/memstore"
	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}
func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

type handlerFunc func(ctx context.Context, d amqp.Delivery) error

func (f handlerFunc) Handle(ctx context.Context, d amqp.Delivery) error { return f(ctx, d) }

func deliver(t *testing.T, r *Router, h Handler, body string) *ackRecorder {
	t.Helper()
	rec := &ackRecorder{}
	r.dispatch(registration{queueName: "q", handler: h, consumerTag: "c_q"},
		amqp.Delivery{Acknowledger: rec, Body: []byte(body), RoutingKey: NotificationRoutingKey})
	return rec
}

func TestRouterDispatch(t *testing.T) {
	r := NewRouter(nil, WithTimeout(time.Second))

	rec := deliver(t, r, handlerFunc(func(context.Context, amqp.Delivery) error { return nil }), "{}")
	assert.True(t, rec.acked)

	rec = deliver(t, r, handlerFunc(func(context.Context, amqp.Delivery) error { return errors.New("db down") }), "{}")
	assert.True(t, rec.nacked)
	assert.True(t, rec.requeue)

	rec = deliver(t, r, handlerFunc(func(context.Context, amqp.Delivery) error { return Permanent(errors.New("bad")) }), "{}")
	assert.True(t, rec.nacked)
	assert.False(t, rec.requeue)

	noRequeue := NewRouter(nil, WithRequeue(false))
	rec = deliver(t, noRequeue, handlerFunc(func(context.Context, amqp.Delivery) error { return errors.New("db down") }), "{}")
	assert.False(t, rec.requeue)
}

func TestRouterHandlerGetsDeadline(t *testing.T) {
	r := NewRouter(nil, WithTimeout(50*time.Millisecond))
	var hasDeadline bool
	deliver(t, r, handlerFunc(func(ctx context.Context, _ amqp.Delivery) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}), "{}")
	assert.True(t, hasDeadline)
}

func TestJSONHandlerPoison(t *testing.T) {
	called := false
	h := JSONHandler[usecase.NotificationMsg]{HandleFunc: func(context.Context, usecase.NotificationMsg) error {
		called = true
		return nil
	}}
	err := h.Handle(context.Background(), amqp.Delivery{Body: []byte("not json")})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.False(t, called)
}

func TestNotificationHandlerPersists(t *testing.T) {
	s := memstore.New()
	h := NewNotificationHandler(usecase.NewNotifier(s.Notifications()))
	jh := JSONHandler[usecase.NotificationMsg]{HandleFunc: h.HandleNotification}
	r := NewRouter(nil)

	body, err := json.Marshal(usecase.NotificationMsg{
		UserID: "u1", OrderID: "o1", Type: string(domain.NotificationOrderStatus),
		Title: "Order shipped", Message: "Your order #o1 is on its way.",
		Metadata: map[string]any{"status": "shipping"},
	})
	require.NoError(t, err)
	rec := deliver(t, r, jh, string(body))
	assert.True(t, rec.acked)

	list, err := s.Notifications().ListByUser(context.Background(), "u1", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Order shipped", list[0].Title)
	assert.Equal(t, domain.NotificationOrderStatus, list[0].Type)
	assert.Equal(t, "shipping", list[0].Metadata["status"])

	// no recipient: dropped, not requeued forever
	rec = deliver(t, r, jh, `{"type":"order_status"}`)
	assert.True(t, rec.nacked)
	assert.False(t, rec.requeue)
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
	err           error
}

func (f *fakePublisher) PublishWithDeferredConfirmWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil, f.err
}

func TestProducerEmit(t *testing.T) {
	fp := &fakePublisher{}
	p := &RabbitProducer{pub: fp}

	err := p.Emit(context.Background(), "u1", usecase.NotificationDraft{
		Type: domain.NotificationOrderRejected, OrderID: "o1", Title: "Order rejected", Message: "nope",
	})
	require.NoError(t, err)
	assert.Equal(t, ExchangeName, fp.exchange)
	assert.Equal(t, NotificationRoutingKey, fp.key)
	assert.Equal(t, amqp.Persistent, fp.msg.DeliveryMode)
	assert.Equal(t, "application/json", fp.msg.ContentType)

	var got usecase.NotificationMsg
	require.NoError(t, json.Unmarshal(fp.msg.Body, &got))
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "order_rejected", got.Type)

	fp.err = errors.New("channel closed")
	assert.Error(t, p.Emit(context.Background(), "u1", usecase.NotificationDraft{}))
}
