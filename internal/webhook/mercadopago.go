package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
)

// MercadoPagoClient reads the payment status reported by the gateway itself.
type MercadoPagoClient struct {
	http *resty.Client
}

func NewMercadoPagoClient(baseURL, accessToken string, timeout time.Duration) *MercadoPagoClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(accessToken).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &MercadoPagoClient{http: c}
}

func (c *MercadoPagoClient) PaymentStatus(ctx context.Context, paymentID string) (orders.PaymentStatus, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		Get("/v1/payments/{id}")
	if err != nil {
		return "", fmt.Errorf("mercadopago payment %s: %w", paymentID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("mercadopago payment %s: http %d", paymentID, resp.StatusCode())
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("mercadopago payment %s: decode: %w", paymentID, err)
	}
	return MapMercadoPagoStatus(out.Status), nil
}

// MapMercadoPagoStatus folds the gateway's payment states into ours.
func MapMercadoPagoStatus(s string) orders.PaymentStatus {
	switch s {
	case "approved":
		return orders.PaymentApproved
	case "rejected", "cancelled", "refunded", "charged_back":
		return orders.PaymentFailed
	default:
		return orders.PaymentPending
	}
}
