package orders

import "time"

type Order struct {
	ID               string        `json:"id"`
	StoreUserID      string        `json:"store_user_id"`
	Status           Status        `json:"status"`
	TotalAmount      float64       `json:"total_amount"`
	CustomerName     string        `json:"customer_name"`
	CustomerEmail    string        `json:"customer_email"`
	CustomerPhone    string        `json:"customer_phone,omitempty"`
	PaymentMethod    string        `json:"payment_method"`
	PixPaymentStatus PaymentStatus `json:"pix_payment_status,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// PixPayment links an order to the gateway transaction that pays it.
type PixPayment struct {
	ID                string        `json:"id"`
	OrderID           string        `json:"order_id"`
	Gateway           string        `json:"gateway"`
	ExternalPaymentID string        `json:"external_payment_id"`
	Status            PaymentStatus `json:"status"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// ApproveResult reports whether ApprovePayment performed the transition.
// Approved is false when the payment was already approved (duplicate delivery).
type ApproveResult struct {
	Approved      bool
	OrderID       string
	StoreUserID   string
	TotalAmount   float64
	CurrentStatus PaymentStatus
	PaidAt        time.Time
}
