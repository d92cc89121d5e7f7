package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
	"github.com/ariefcatur/go-pix-reconciler/internal/reconcile"
	"github.com/ariefcatur/go-pix-reconciler/internal/webhook"
)

const maxWebhookBody = 1 << 20

type Reconciler interface {
	Apply(ctx context.Context, n webhook.Notification) (reconcile.Result, error)
}

// PaymentStatusSource asks the gateway for the authoritative payment status.
type PaymentStatusSource interface {
	PaymentStatus(ctx context.Context, paymentID string) (orders.PaymentStatus, error)
}

type WebhookHandler struct {
	Reconciler  Reconciler
	Verifier    webhook.Verifier
	MercadoPago PaymentStatusSource // nil: trust the notification action

	tracer     trace.Tracer
	deliveries metric.Int64Counter
}

func NewWebhookHandler(rec Reconciler, v webhook.Verifier, mp PaymentStatusSource) (*WebhookHandler, error) {
	deliveries, err := otel.Meter("webhook").Int64Counter("webhook_deliveries_total",
		metric.WithDescription("Gateway webhook deliveries by gateway and outcome"))
	if err != nil {
		return nil, fmt.Errorf("webhook_deliveries_total counter: %w", err)
	}
	return &WebhookHandler{
		Reconciler:  rec,
		Verifier:    v,
		MercadoPago: mp,
		tracer:      otel.Tracer("webhook"),
		deliveries:  deliveries,
	}, nil
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/payments", h.receive)
}

// receive acknowledges every delivery it can make sense of with 200 so the
// gateway does not retry; only broken infrastructure yields 500.
func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	defer recoverJSON(w, map[string]string{"error": "internal error"})

	ctx, span := h.tracer.Start(r.Context(), "webhook.receive")
	defer span.End()

	gateway := r.URL.Query().Get("gateway")
	if gateway == "" {
		gateway = webhook.GatewayMercadoPago
	}
	span.SetAttributes(attribute.String("gateway", gateway))

	done := func(code int, body any, outcome string) {
		span.SetAttributes(attribute.String("outcome", outcome))
		h.deliveries.Add(ctx, 1, metric.WithAttributes(
			attribute.String("gateway", gateway),
			attribute.String("outcome", outcome),
		))
		writeJSON(w, code, body)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "webhook read body", "gateway", gateway, "err", err)
		done(http.StatusInternalServerError, map[string]string{"error": "internal error"}, "error")
		return
	}

	n, ok, err := webhook.Normalize(gateway, body)
	if errors.Is(err, webhook.ErrUnknownGateway) {
		done(http.StatusOK, reconcile.Result{Received: true, Reason: "unknown gateway"}, "unknown_gateway")
		return
	}
	if !ok {
		done(http.StatusOK, reconcile.Result{Received: true}, "unrecognized")
		return
	}
	span.SetAttributes(attribute.String("external_id", n.ExternalID))

	if err := h.Verifier.Verify(n, r.Header, body); err != nil {
		slog.WarnContext(ctx, "webhook signature rejected", "gateway", gateway, "external_id", n.ExternalID, "err", err)
		done(http.StatusOK, reconcile.Result{Received: true, Reason: "invalid signature"}, "invalid_signature")
		return
	}

	if n.Gateway == webhook.GatewayMercadoPago && h.MercadoPago != nil {
		st, err := h.MercadoPago.PaymentStatus(ctx, n.ExternalID)
		if err != nil {
			span.RecordError(err)
			slog.WarnContext(ctx, "payment status lookup", "gateway", gateway, "external_id", n.ExternalID, "err", err)
			done(http.StatusOK, reconcile.Result{Received: true, Reason: "payment status unavailable"}, "status_unavailable")
			return
		}
		n.Status = st
	}

	res, err := h.Reconciler.Apply(ctx, n)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		done(http.StatusInternalServerError, map[string]string{"error": "internal error"}, "error")
		return
	}
	done(http.StatusOK, res, res.Outcome)
}

// recoverJSON must be deferred directly so recover() sees the panic.
func recoverJSON(w http.ResponseWriter, body any) {
	rec := recover()
	if rec == nil {
		return
	}
	if rec == http.ErrAbortHandler {
		panic(rec)
	}
	slog.Error("handler panic", "panic", rec)
	writeJSON(w, http.StatusInternalServerError, body)
}
