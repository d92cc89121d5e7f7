package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// Verifier checks delivery authenticity per gateway. A gateway with no
// configured secret is accepted as-is.
type Verifier struct {
	MercadoPagoSecret string
	PagBankToken      string
}

func (v Verifier) Verify(n Notification, h http.Header, body []byte) error {
	switch n.Gateway {
	case GatewayMercadoPago:
		if v.MercadoPagoSecret == "" {
			return nil
		}
		return VerifyMercadoPago(v.MercadoPagoSecret, h.Get("x-signature"), h.Get("x-request-id"), n.ExternalID)
	case GatewayPagBank:
		if v.PagBankToken == "" {
			return nil
		}
		return VerifyPagBank(v.PagBankToken, h.Get("x-authenticity-token"), body)
	}
	return ErrUnknownGateway
}

// VerifyMercadoPago validates the "ts=...,v1=..." x-signature header. The
// signed manifest is id:{data.id};request-id:{x-request-id};ts:{ts}; with
// absent parts left out.
func VerifyMercadoPago(secret, signature, requestID, dataID string) error {
	var ts, v1 string
	for _, part := range strings.Split(signature, ",") {
		k, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "ts":
			ts = val
		case "v1":
			v1 = val
		}
	}
	if ts == "" || v1 == "" {
		return fmt.Errorf("%w: malformed x-signature", ErrInvalidSignature)
	}

	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		manifest.WriteString("request-id:" + requestID + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest.String()))
	if !hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(strings.ToLower(v1))) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyPagBank validates x-authenticity-token = sha256("{token}-{payload}").
func VerifyPagBank(token, header string, body []byte) error {
	if header == "" {
		return fmt.Errorf("%w: missing x-authenticity-token", ErrInvalidSignature)
	}
	sum := sha256.Sum256([]byte(token + "-" + string(body)))
	if !hmac.Equal([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(header))) {
		return ErrInvalidSignature
	}
	return nil
}
