package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
)

func TestMercadoPagoClientPaymentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/payments/111":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":111,"status":"approved"}`))
		case "/v1/payments/222":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":222,"status":"rejected"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewMercadoPagoClient(srv.URL, "tok", 2*time.Second)
	ctx := context.Background()

	st, err := c.PaymentStatus(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentApproved, st)

	st, err = c.PaymentStatus(ctx, "222")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentFailed, st)

	_, err = c.PaymentStatus(ctx, "333")
	assert.Error(t, err)
}
