package httpx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
	"github.com/ariefcatur/go-pix-reconciler/internal/reconcile"
	"github.com/ariefcatur/go-pix-reconciler/internal/webhook"
)

// paymentTable is a minimal reconcile.PaymentStore keyed by "gateway/id".
// Both gateways hold a payment with id 12345, each for its own order.
type paymentTable struct {
	mu       sync.Mutex
	payments map[string]*orders.PixPayment
	orders   map[string]*orders.Order
}

const (
	mp12345 = webhook.GatewayMercadoPago + "/12345"
	pb12345 = webhook.GatewayPagBank + "/12345"
)

func newPaymentTable() *paymentTable {
	return &paymentTable{
		payments: map[string]*orders.PixPayment{
			mp12345: {ID: "pp1", OrderID: "o1", Gateway: webhook.GatewayMercadoPago, ExternalPaymentID: "12345", Status: orders.PaymentPending},
			pb12345: {ID: "pp2", OrderID: "o2", Gateway: webhook.GatewayPagBank, ExternalPaymentID: "12345", Status: orders.PaymentPending},
		},
		orders: map[string]*orders.Order{
			"o1": {ID: "o1", Status: orders.StatusPending, PixPaymentStatus: orders.PaymentPending},
			"o2": {ID: "o2", Status: orders.StatusPending, PixPaymentStatus: orders.PaymentPending},
		},
	}
}

func (p *paymentTable) FindByExternalID(_ context.Context, gateway, id string) (*orders.PixPayment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pp, ok := p.payments[gateway+"/"+id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *pp
	return &cp, nil
}

func (p *paymentTable) ApprovePayment(_ context.Context, gateway, id string, at time.Time) (orders.ApproveResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pp, ok := p.payments[gateway+"/"+id]
	if !ok {
		return orders.ApproveResult{}, orders.ErrNotFound
	}
	if pp.Status == orders.PaymentApproved {
		return orders.ApproveResult{OrderID: pp.OrderID, CurrentStatus: pp.Status}, nil
	}
	pp.Status, pp.PaidAt = orders.PaymentApproved, &at
	o := p.orders[pp.OrderID]
	o.Status, o.PixPaymentStatus = orders.StatusPaid, orders.PaymentApproved
	return orders.ApproveResult{Approved: true, OrderID: pp.OrderID, CurrentStatus: orders.PaymentApproved, PaidAt: at}, nil
}

func (p *paymentTable) MarkFailed(_ context.Context, gateway, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pp, ok := p.payments[gateway+"/"+id]
	if !ok || pp.Status != orders.PaymentPending {
		return false, nil
	}
	pp.Status = orders.PaymentFailed
	return true, nil
}

type stubStatus struct {
	status orders.PaymentStatus
	err    error
}

func (s stubStatus) PaymentStatus(context.Context, string) (orders.PaymentStatus, error) {
	return s.status, s.err
}

type failingReconciler struct{}

func (failingReconciler) Apply(context.Context, webhook.Notification) (reconcile.Result, error) {
	return reconcile.Result{}, errors.New("db unavailable")
}

type panickingReconciler struct{}

func (panickingReconciler) Apply(context.Context, webhook.Notification) (reconcile.Result, error) {
	panic("boom")
}

func newWebhookRouter(t *testing.T, rec Reconciler, v webhook.Verifier, mp PaymentStatusSource) http.Handler {
	t.Helper()
	h, err := NewWebhookHandler(rec, v, mp)
	require.NoError(t, err)
	r := NewRouter()
	h.Register(r)
	return r
}

func newReconciler(t *testing.T, table *paymentTable) *reconcile.Service {
	t.Helper()
	svc, err := reconcile.NewService(table, nil, nil, "payments-api-test")
	require.NoError(t, err)
	return svc
}

func post(h http.Handler, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const mpUpdated = `{"type":"payment","action":"payment.updated","data":{"id":"12345"}}`

func TestWebhookApprovesThenAcknowledgesDuplicate(t *testing.T) {
	table := newPaymentTable()
	h := newWebhookRouter(t, newReconciler(t, table), webhook.Verifier{}, nil)

	w := post(h, "/webhooks/payments?gateway=mercadopago", mpUpdated, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"processed":true,"status":"approved"}`, w.Body.String())

	assert.Equal(t, orders.PaymentApproved, table.payments[mp12345].Status)
	assert.NotNil(t, table.payments[mp12345].PaidAt)
	assert.Equal(t, orders.StatusPaid, table.orders["o1"].Status)
	assert.Equal(t, orders.PaymentApproved, table.orders["o1"].PixPaymentStatus)

	w = post(h, "/webhooks/payments", mpUpdated, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"processed":false,"currentStatus":"approved"}`, w.Body.String())
}

func TestWebhookAcknowledgesInertDeliveries(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		want   string
	}{
		{"unrecognized mp", "/webhooks/payments", `{"type":"merchant_order","data":{"id":"1"}}`, `{"received":true,"processed":false}`},
		{"malformed", "/webhooks/payments", `not json`, `{"received":true,"processed":false}`},
		{"pagbank not paid", "/webhooks/payments?gateway=pagbank", `{"id":"12345","charges":[{"status":"DECLINED"}]}`, `{"received":true,"processed":false}`},
		{"unknown gateway", "/webhooks/payments?gateway=stripe", `{}`, `{"received":true,"processed":false,"reason":"unknown gateway"}`},
		{"unknown payment", "/webhooks/payments", `{"type":"payment","action":"payment.created","data":{"id":999}}`, `{"received":true,"processed":false,"reason":"Payment not found"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := newPaymentTable()
			h := newWebhookRouter(t, newReconciler(t, table), webhook.Verifier{}, nil)

			w := post(h, tt.target, tt.body, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
			assert.Equal(t, orders.PaymentPending, table.payments[mp12345].Status)
		})
	}
}

func TestWebhookPagBankPaid(t *testing.T) {
	table := newPaymentTable()
	h := newWebhookRouter(t, newReconciler(t, table), webhook.Verifier{}, nil)

	w := post(h, "/webhooks/payments?gateway=pagbank", `{"id":"12345","qr_codes":[{"status":"PAID"}]}`, nil)
	assert.JSONEq(t, `{"received":true,"processed":true,"status":"approved"}`, w.Body.String())

	assert.Equal(t, orders.PaymentApproved, table.payments[pb12345].Status)
	assert.Equal(t, orders.StatusPaid, table.orders["o2"].Status)
	assert.Equal(t, orders.PaymentPending, table.payments[mp12345].Status)
	assert.Equal(t, orders.StatusPending, table.orders["o1"].Status)
}

func TestWebhookInvalidSignatureDoesNotMutate(t *testing.T) {
	table := newPaymentTable()
	h := newWebhookRouter(t, newReconciler(t, table), webhook.Verifier{MercadoPagoSecret: "secret"}, nil)

	w := post(h, "/webhooks/payments", mpUpdated, map[string]string{"x-signature": "ts=1,v1=deadbeef"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"processed":false,"reason":"invalid signature"}`, w.Body.String())
	assert.Equal(t, orders.PaymentPending, table.payments[mp12345].Status)
}

func TestWebhookValidPagBankSignature(t *testing.T) {
	table := newPaymentTable()
	h := newWebhookRouter(t, newReconciler(t, table), webhook.Verifier{PagBankToken: "tok"}, nil)

	body := `{"id":"12345","charges":[{"status":"PAID"}]}`
	sum := sha256.Sum256([]byte("tok-" + body))
	w := post(h, "/webhooks/payments?gateway=pagbank", body, map[string]string{"x-authenticity-token": hex.EncodeToString(sum[:])})
	assert.JSONEq(t, `{"received":true,"processed":true,"status":"approved"}`, w.Body.String())
}

func TestWebhookUsesAuthoritativeStatus(t *testing.T) {
	table := newPaymentTable()
	h := newWebhookRouter(t, newReconciler(t, table), webhook.Verifier{}, stubStatus{status: orders.PaymentFailed})

	w := post(h, "/webhooks/payments", mpUpdated, nil)
	assert.JSONEq(t, `{"received":true,"processed":false,"currentStatus":"failed"}`, w.Body.String())
	assert.Equal(t, orders.PaymentFailed, table.payments[mp12345].Status)
	assert.Equal(t, orders.StatusPending, table.orders["o1"].Status)
}

func TestWebhookStatusLookupFailureIsSoft(t *testing.T) {
	table := newPaymentTable()
	h := newWebhookRouter(t, newReconciler(t, table), webhook.Verifier{}, stubStatus{err: errors.New("timeout")})

	w := post(h, "/webhooks/payments", mpUpdated, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"processed":false,"reason":"payment status unavailable"}`, w.Body.String())
	assert.Equal(t, orders.PaymentPending, table.payments[mp12345].Status)
}

func TestWebhookInternalFailures(t *testing.T) {
	for name, rec := range map[string]Reconciler{"error": failingReconciler{}, "panic": panickingReconciler{}} {
		t.Run(name, func(t *testing.T) {
			h := newWebhookRouter(t, rec, webhook.Verifier{}, nil)
			w := post(h, "/webhooks/payments", mpUpdated, nil)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
		})
	}
}
