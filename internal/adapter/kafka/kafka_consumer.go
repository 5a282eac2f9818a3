package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/aq2208/storefront-api/internal/logging"
	"github.com/aq2208/storefront-api/internal/usecase"
)

// HandlerFunc processes a decoded event.
type HandlerFunc func(ctx context.Context, ev usecase.PaymentStatusMsg) error

// Consumer consumes a topic with a single handler.
type Consumer struct {
	Group  sarama.ConsumerGroup
	Topics []string
	Handle HandlerFunc
	Logger *slog.Logger // optional
}

func NewConsumer(group sarama.ConsumerGroup, topics []string, h HandlerFunc) *Consumer {
	return &Consumer{
		Group:  group,
		Topics: topics,
		Handle: h,
		Logger: logging.New("kafka-consumer"),
	}
}

// Start blocks until ctx is cancelled or the group fails.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &cgHandler{handle: c.Handle, logger: c.Logger}
	if handler.logger == nil {
		handler.logger = logging.Base()
	}
	for {
		if err := c.Group.Consume(ctx, c.Topics, handler); err != nil {
			return err
		}
		// When Consume returns, it's because ctx was cancelled or a rebalance happened.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type cgHandler struct {
	handle HandlerFunc
	logger *slog.Logger
}

func (h *cgHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *cgHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *cgHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if mark, meta := h.process(sess.Context(), msg); mark {
			sess.MarkMessage(msg, meta)
		}
	}
	return nil
}

// process reports whether msg should be marked consumed.
func (h *cgHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) (bool, string) {
	var ev usecase.PaymentStatusMsg
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.WarnContext(ctx, "kafka decode error",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		// mark to avoid reprocessing poison
		return true, "decode-error"
	}
	if err := h.handle(ctx, ev); err != nil {
		h.logger.ErrorContext(ctx, "handler error",
			"key", string(msg.Key), "offset", msg.Offset, "order_id", ev.OrderID, "error", err)
		// Do not mark message; it is retried after the next rebalance.
		return false, ""
	}
	return true, ""
}
