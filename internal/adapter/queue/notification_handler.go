package queue

import (
	"context"
	"errors"

	domain "github.com/aq2208/storefront-api/internal/entity"
	"github.com/aq2208/storefront-api/internal/usecase"
)

// NotificationHandler is the consumer side of the rabbitmq sink. It writes
// each message through a direct sink (the Notifier).
type NotificationHandler struct {
	sink usecase.NotificationSink
}

func NewNotificationHandler(sink usecase.NotificationSink) *NotificationHandler {
	return &NotificationHandler{sink: sink}
}

// HandleNotification is intended to be used with JSONHandler[usecase.NotificationMsg].
func (h *NotificationHandler) HandleNotification(ctx context.Context, msg usecase.NotificationMsg) error {
	err := h.sink.Emit(ctx, msg.UserID, usecase.NotificationDraft{
		Type:     domain.NotificationType(msg.Type),
		Title:    msg.Title,
		Message:  msg.Message,
		OrderID:  msg.OrderID,
		Metadata: msg.Metadata,
	})
	if errors.Is(err, usecase.ErrValidation) {
		return Permanent(err)
	}
	return err
}
