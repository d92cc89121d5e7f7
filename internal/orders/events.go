package orders

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentApproved = "PaymentApproved"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type PaymentApprovedPayload struct {
	OrderID           string    `json:"order_id"`
	StoreUserID       string    `json:"store_user_id"`
	Gateway           string    `json:"gateway"`
	ExternalPaymentID string    `json:"external_payment_id"`
	TotalAmount       float64   `json:"total_amount"`
	PaidAt            time.Time `json:"paid_at"`
}
