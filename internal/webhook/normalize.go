// Package webhook turns gateway-specific payment notifications into a
// single Notification shape and checks their authenticity.
package webhook

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
)

const (
	GatewayMercadoPago = "mercadopago"
	GatewayPagBank     = "pagbank"
)

var (
	ErrUnknownGateway   = errors.New("unknown gateway")
	ErrInvalidSignature = errors.New("invalid signature")
)

type Notification struct {
	Gateway    string
	ExternalID string
	Status     orders.PaymentStatus
	Action     string
}

// Normalize extracts the external payment id and status from a raw delivery.
// ok=false means the payload is well-formed enough to acknowledge but carries
// nothing to reconcile. Malformed JSON is reported the same way.
func Normalize(gateway string, body []byte) (n Notification, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(gateway)) {
	case "", GatewayMercadoPago:
		n, ok = normalizeMercadoPago(body)
	case GatewayPagBank:
		n, ok = normalizePagBank(body)
	default:
		return Notification{}, false, ErrUnknownGateway
	}
	return n, ok, nil
}

type mercadoPagoBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

func normalizeMercadoPago(body []byte) (Notification, bool) {
	var b mercadoPagoBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Notification{}, false
	}
	if b.Type != "payment" || b.Data.ID == "" {
		return Notification{}, false
	}
	if b.Action != "payment.created" && b.Action != "payment.updated" {
		return Notification{}, false
	}
	// The action does not carry the payment outcome. Callers that can reach
	// the gateway API should replace Status with the authoritative value.
	return Notification{
		Gateway:    GatewayMercadoPago,
		ExternalID: string(b.Data.ID),
		Status:     orders.PaymentApproved,
		Action:     b.Action,
	}, true
}

type pagBankBody struct {
	ID      string `json:"id"`
	Charges []struct {
		Status string `json:"status"`
	} `json:"charges"`
	QRCodes []struct {
		Status string `json:"status"`
	} `json:"qr_codes"`
}

func normalizePagBank(body []byte) (Notification, bool) {
	var b pagBankBody
	if err := json.Unmarshal(body, &b); err != nil {
		return Notification{}, false
	}
	if b.ID == "" {
		return Notification{}, false
	}
	n := Notification{Gateway: GatewayPagBank, ExternalID: b.ID, Status: orders.PaymentApproved}
	switch {
	case len(b.Charges) > 0 && b.Charges[0].Status == "PAID":
		n.Action = "charge.paid"
	case len(b.QRCodes) > 0 && b.QRCodes[0].Status == "PAID":
		n.Action = "qr_code.paid"
	default:
		return Notification{}, false
	}
	return n, true
}

// flexID accepts both "123" and 123.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*f = flexID(num.String())
	return nil
}
