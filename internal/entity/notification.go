package domain

import "time"

type NotificationType string

const (
	NotificationOrderPlaced   NotificationType = "order_placed"
	NotificationOrderStatus   NotificationType = "order_status"
	NotificationOrderRejected NotificationType = "order_rejected"
	NotificationOrderDeleted  NotificationType = "order_deleted"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	OrderID   string           `json:"orderId,omitempty"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
