package usecase

// PaymentStatusMsg is sent by the payment gateway on Kafka.
type PaymentStatusMsg struct {
	OrderID  string `json:"orderId"`
	UserID   string `json:"userId"`
	Cents    int64  `json:"cents"`
	Currency string `json:"currency"`
	Status   string `json:"status"` // e.g. "SUCCESS"
}

// NotificationMsg carries a NotificationDraft over RabbitMQ.
type NotificationMsg struct {
	UserID   string         `json:"userId"`
	OrderID  string         `json:"orderId,omitempty"`
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
