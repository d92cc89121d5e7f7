// Package reconcile applies normalized gateway notifications to the local
// payment and order records.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	kafkax "github.com/ariefcatur/go-pix-reconciler/internal/kafka"
	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
	"github.com/ariefcatur/go-pix-reconciler/internal/webhook"
)

type PaymentStore interface {
	FindByExternalID(ctx context.Context, gateway, externalID string) (*orders.PixPayment, error)
	ApprovePayment(ctx context.Context, gateway, externalID string, paidAt time.Time) (orders.ApproveResult, error)
	MarkFailed(ctx context.Context, gateway, externalID string) (bool, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type StatusCache interface {
	Invalidate(ctx context.Context, orderID string) error
}

const (
	OutcomeApproved  = "approved"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
	OutcomeNotFound  = "not_found"
)

// Result is written to the gateway as the webhook response body.
type Result struct {
	Received      bool                 `json:"received"`
	Processed     bool                 `json:"processed"`
	Status        orders.PaymentStatus `json:"status,omitempty"`
	CurrentStatus orders.PaymentStatus `json:"currentStatus,omitempty"`
	Reason        string               `json:"reason,omitempty"`

	Outcome string `json:"-"`
	OrderID string `json:"-"`
}

type Service struct {
	Payments PaymentStore
	Events   Publisher   // optional
	Cache    StatusCache // optional
	Producer string
	Now      func() time.Time

	tracer   trace.Tracer
	approved metric.Int64Counter
}

func NewService(payments PaymentStore, events Publisher, cache StatusCache, producer string) (*Service, error) {
	approved, err := otel.Meter("reconcile").Int64Counter("payments_approved_total",
		metric.WithDescription("Pix payments moved to approved by webhook reconciliation"))
	if err != nil {
		return nil, fmt.Errorf("payments_approved_total counter: %w", err)
	}
	return &Service{
		Payments: payments,
		Events:   events,
		Cache:    cache,
		Producer: producer,
		Now:      time.Now,
		tracer:   otel.Tracer("reconcile"),
		approved: approved,
	}, nil
}

// Apply performs at most one state transition for n. Only infrastructure
// failures are returned as errors; unknown ids and no-ops are Results.
func (s *Service) Apply(ctx context.Context, n webhook.Notification) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway", n.Gateway),
		attribute.String("external_id", n.ExternalID),
		attribute.String("notified_status", string(n.Status)),
	)

	var (
		res Result
		err error
	)
	switch n.Status {
	case orders.PaymentApproved:
		res, err = s.approve(ctx, n)
	case orders.PaymentFailed:
		res, err = s.fail(ctx, n)
	default:
		res, err = s.inspect(ctx, n)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "reconcile failed", "gateway", n.Gateway, "external_id", n.ExternalID, "err", err)
		return Result{}, err
	}

	span.SetAttributes(attribute.String("outcome", res.Outcome))
	slog.InfoContext(ctx, "reconcile",
		"gateway", n.Gateway,
		"external_id", n.ExternalID,
		"order_id", res.OrderID,
		"outcome", res.Outcome,
	)
	return res, nil
}

func (s *Service) approve(ctx context.Context, n webhook.Notification) (Result, error) {
	ar, err := s.Payments.ApprovePayment(ctx, n.Gateway, n.ExternalID, s.Now().UTC())
	if errors.Is(err, orders.ErrNotFound) {
		return notFound(), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("approve payment %s: %w", n.ExternalID, err)
	}
	if !ar.Approved {
		return Result{
			Received:      true,
			CurrentStatus: ar.CurrentStatus,
			Outcome:       OutcomeDuplicate,
			OrderID:       ar.OrderID,
		}, nil
	}

	s.approved.Add(ctx, 1, metric.WithAttributes(attribute.String("gateway", n.Gateway)))
	s.afterApprove(ctx, n, ar)
	return Result{
		Received:  true,
		Processed: true,
		Status:    orders.PaymentApproved,
		Outcome:   OutcomeApproved,
		OrderID:   ar.OrderID,
	}, nil
}

// afterApprove runs once the transaction has committed. Neither step can
// undo the approval, so failures are only logged.
func (s *Service) afterApprove(ctx context.Context, n webhook.Notification, ar orders.ApproveResult) {
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, ar.OrderID); err != nil {
			slog.WarnContext(ctx, "order status cache invalidate", "order_id", ar.OrderID, "err", err)
		}
	}
	if s.Events == nil {
		return
	}
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentApproved,
		EventVersion:  1,
		OccurredAt:    s.Now().UTC(),
		Producer:      s.Producer,
		TraceID:       traceID,
		CorrelationID: ar.OrderID,
		Payload: kafkax.MustMarshal(orders.PaymentApprovedPayload{
			OrderID:           ar.OrderID,
			StoreUserID:       ar.StoreUserID,
			Gateway:           n.Gateway,
			ExternalPaymentID: n.ExternalID,
			TotalAmount:       ar.TotalAmount,
			PaidAt:            ar.PaidAt,
		}),
	}
	s.Events.Publish(orders.PartitionKey(ar.OrderID), kafkax.MustMarshal(ev),
		kafkax.EventHeaders(orders.EventPaymentApproved, 1)...)
}

func (s *Service) fail(ctx context.Context, n webhook.Notification) (Result, error) {
	p, err := s.Payments.FindByExternalID(ctx, n.Gateway, n.ExternalID)
	if errors.Is(err, orders.ErrNotFound) {
		return notFound(), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("find payment %s: %w", n.ExternalID, err)
	}

	changed, err := s.Payments.MarkFailed(ctx, n.Gateway, n.ExternalID)
	if err != nil {
		return Result{}, fmt.Errorf("mark payment %s failed: %w", n.ExternalID, err)
	}
	if !changed {
		// approved or already failed; re-read so the response reflects the row
		if p, err = s.Payments.FindByExternalID(ctx, n.Gateway, n.ExternalID); err != nil {
			return Result{}, fmt.Errorf("find payment %s: %w", n.ExternalID, err)
		}
		return Result{Received: true, CurrentStatus: p.Status, Outcome: OutcomeIgnored, OrderID: p.OrderID}, nil
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, p.OrderID); err != nil {
			slog.WarnContext(ctx, "order status cache invalidate", "order_id", p.OrderID, "err", err)
		}
	}
	// recorded, but only an approval counts as processed
	return Result{
		Received:      true,
		CurrentStatus: orders.PaymentFailed,
		Outcome:       OutcomeFailed,
		OrderID:       p.OrderID,
	}, nil
}

func (s *Service) inspect(ctx context.Context, n webhook.Notification) (Result, error) {
	p, err := s.Payments.FindByExternalID(ctx, n.Gateway, n.ExternalID)
	if errors.Is(err, orders.ErrNotFound) {
		return notFound(), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("find payment %s: %w", n.ExternalID, err)
	}
	return Result{Received: true, CurrentStatus: p.Status, Outcome: OutcomeIgnored, OrderID: p.OrderID}, nil
}

func notFound() Result {
	return Result{Received: true, Reason: "Payment not found", Outcome: OutcomeNotFound}
}
