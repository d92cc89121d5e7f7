package reconcile

import (
	"context"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
	"github.com/ariefcatur/go-pix-reconciler/internal/webhook"
)

// memStore mirrors the conditional-update semantics of orders.PaymentRepo.
// Payments are keyed by gateway and external id.
type memStore struct {
	mu        sync.Mutex
	payments  map[paymentKey]*orders.PixPayment
	orders    map[string]*orders.Order
	mutations int
	err       error
}

func newMemStore() *memStore {
	return &memStore{
		payments: map[paymentKey]*orders.PixPayment{},
		orders:   map[string]*orders.Order{},
	}
}

type paymentKey struct{ gateway, id string }

func (m *memStore) seed(orderID, externalID string) {
	m.seedGateway(webhook.GatewayMercadoPago, orderID, externalID)
}

func (m *memStore) seedGateway(gateway, orderID, externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID] = &orders.Order{
		ID: orderID, StoreUserID: "store-1", Status: orders.StatusPending,
		TotalAmount: 99.9, PaymentMethod: "pix", PixPaymentStatus: orders.PaymentPending,
	}
	m.payments[paymentKey{gateway, externalID}] = &orders.PixPayment{
		ID: "pp-" + externalID, OrderID: orderID, Gateway: gateway,
		ExternalPaymentID: externalID, Status: orders.PaymentPending,
	}
}

func (m *memStore) payment(externalID string) orders.PixPayment {
	return m.paymentOf(webhook.GatewayMercadoPago, externalID)
}

func (m *memStore) paymentOf(gateway, externalID string) orders.PixPayment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.payments[paymentKey{gateway, externalID}]
}

func (m *memStore) order(id string) orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[id]
}

func (m *memStore) FindByExternalID(_ context.Context, gateway, externalID string) (*orders.PixPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.payments[paymentKey{gateway, externalID}]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ApprovePayment(_ context.Context, gateway, externalID string, paidAt time.Time) (orders.ApproveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := orders.ApproveResult{PaidAt: paidAt}
	if m.err != nil {
		return res, m.err
	}
	p, ok := m.payments[paymentKey{gateway, externalID}]
	if !ok {
		return res, orders.ErrNotFound
	}
	res.OrderID = p.OrderID
	if p.Status == orders.PaymentApproved {
		res.CurrentStatus = p.Status
		return res, nil
	}
	p.Status = orders.PaymentApproved
	p.PaidAt = &paidAt
	o := m.orders[p.OrderID]
	o.Status = orders.StatusPaid
	o.PixPaymentStatus = orders.PaymentApproved
	m.mutations++

	res.Approved = true
	res.CurrentStatus = orders.PaymentApproved
	res.StoreUserID = o.StoreUserID
	res.TotalAmount = o.TotalAmount
	return res, nil
}

func (m *memStore) MarkFailed(_ context.Context, gateway, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	p, ok := m.payments[paymentKey{gateway, externalID}]
	if !ok || p.Status != orders.PaymentPending {
		return false, nil
	}
	p.Status = orders.PaymentFailed
	m.orders[p.OrderID].PixPaymentStatus = orders.PaymentFailed
	m.mutations++
	return true, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (p *recordingPublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, orderID)
	return nil
}
