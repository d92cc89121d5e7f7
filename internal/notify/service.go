// Package notify turns payment events into store-owner dashboard notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-pix-reconciler/internal/kafka"
	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
)

const KindPaymentApproved = "payment_approved"

type Notification struct {
	ID          string
	StoreUserID string
	OrderID     string
	Kind        string
	Title       string
	Body        string
	CreatedAt   time.Time
}

type Store interface {
	// Insert returns false when a notification of the same kind already
	// exists for the order.
	Insert(ctx context.Context, n Notification) (bool, error)
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Service struct {
	Store Store
	Dedup Deduper
	Now   func() time.Time
}

// HandlePaymentApproved is the consumer handler for order.payment.approved.
// Redis dedup is a fast path; the unique (order_id, kind) constraint is what
// keeps redelivered events from creating a second notification.
func (s *Service) HandlePaymentApproved(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// poison message: log and commit so the partition keeps moving
		slog.Error("notify: bad envelope", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != orders.EventPaymentApproved {
		return nil
	}

	if seen, err := s.Dedup.Seen(ctx, env.EventID); err != nil {
		slog.Warn("notify: dedup lookup", "event_id", env.EventID, "err", err)
	} else if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentApprovedPayload](env.Payload)
	if err != nil {
		slog.Error("notify: bad payload", "event_id", env.EventID, "err", err)
		return nil
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	created, err := s.Store.Insert(ctx, Notification{
		ID:          uuid.NewString(),
		StoreUserID: p.StoreUserID,
		OrderID:     p.OrderID,
		Kind:        KindPaymentApproved,
		Title:       "Pagamento Pix aprovado",
		Body:        fmt.Sprintf("Pedido %s pago: R$ %.2f", shortID(p.OrderID), p.TotalAmount),
		CreatedAt:   now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert notification for order %s: %w", p.OrderID, err)
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		slog.Warn("notify: dedup mark", "event_id", env.EventID, "err", err)
	}
	slog.Info("notify: payment approved", "order_id", p.OrderID, "store_user_id", p.StoreUserID, "created", created)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
