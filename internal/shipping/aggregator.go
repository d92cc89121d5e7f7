package shipping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/go-pix-reconciler/internal/redisx"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

const (
	msgNotConfigured = "Shipping not configured for this store"
	msgProvider      = "Shipping provider unavailable"
	msgInternal      = "Internal error while calculating shipping"
)

type Aggregator struct {
	Settings SettingsStore
	Provider Provider
	Cache    Cache // optional
	CacheTTL time.Duration

	tracer trace.Tracer
	quotes metric.Int64Counter
}

func NewAggregator(settings SettingsStore, provider Provider, cache Cache, ttl time.Duration) (*Aggregator, error) {
	quotes, err := otel.Meter("shipping").Int64Counter("shipping_quotes_total",
		metric.WithDescription("Shipping quote requests by outcome"))
	if err != nil {
		return nil, fmt.Errorf("shipping_quotes_total counter: %w", err)
	}
	return &Aggregator{
		Settings: settings,
		Provider: provider,
		Cache:    cache,
		CacheTTL: ttl,
		tracer:   otel.Tracer("shipping"),
		quotes:   quotes,
	}, nil
}

// Quote returns the response body and HTTP status. External failures are
// soft: 200 with an error message and no quotes. 500 is returned only when
// the settings store itself fails.
func (a *Aggregator) Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, int) {
	ctx, span := a.tracer.Start(ctx, "shipping.quote")
	defer span.End()
	span.SetAttributes(attribute.String("store_user_id", req.StoreUserID))

	resp, code, outcome := a.quote(ctx, span, req)
	span.SetAttributes(attribute.String("outcome", outcome))
	a.quotes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if resp.Quotes == nil {
		resp.Quotes = []Quote{}
	}
	return resp, code
}

func (a *Aggregator) quote(ctx context.Context, span trace.Span, req QuoteRequest) (QuoteResponse, int, string) {
	req, err := normalizeRequest(req)
	if err != nil {
		return QuoteResponse{Error: err.Error()}, http.StatusBadRequest, "bad_request"
	}

	settings, err := a.Settings.ShippingSettings(ctx, req.StoreUserID)
	switch {
	case errors.Is(err, ErrSettingsNotFound):
		return QuoteResponse{Error: msgNotConfigured}, http.StatusOK, "not_configured"
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "shipping settings lookup", "store_user_id", req.StoreUserID, "err", err)
		return QuoteResponse{Error: msgInternal}, http.StatusInternalServerError, "internal"
	case settings == nil || !settings.Active || settings.APIToken == "":
		return QuoteResponse{Error: msgNotConfigured}, http.StatusOK, "not_configured"
	}

	key := cacheKey(req, settings.Sandbox)
	if a.Cache != nil {
		if b, ok, err := a.Cache.Get(ctx, key); err != nil {
			slog.WarnContext(ctx, "quote cache get", "err", err)
		} else if ok {
			var cached []Quote
			if err := json.Unmarshal(b, &cached); err == nil {
				return QuoteResponse{Quotes: cached}, http.StatusOK, "cache_hit"
			}
		}
	}

	entries, err := a.Provider.Calculate(ctx, *settings, req)
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "shipping provider failed", "store_user_id", req.StoreUserID, "err", err)
		return QuoteResponse{Error: msgProvider + ": " + err.Error()}, http.StatusOK, "provider_error"
	}

	quotes := Normalize(entries)
	if a.Cache != nil && len(quotes) > 0 {
		b, _ := json.Marshal(quotes)
		if err := a.Cache.Set(ctx, key, b, a.CacheTTL); err != nil {
			slog.WarnContext(ctx, "quote cache set", "err", err)
		}
	}
	return QuoteResponse{Quotes: quotes}, http.StatusOK, "ok"
}

func normalizeRequest(req QuoteRequest) (QuoteRequest, error) {
	if req.StoreUserID == "" {
		return req, errMissingStore
	}
	req.FromPostalCode = PostalCode(req.FromPostalCode)
	req.ToPostalCode = PostalCode(req.ToPostalCode)
	if req.FromPostalCode == "" || req.ToPostalCode == "" {
		return req, errMissingPostalCodes
	}

	products := make([]Package, 0, len(req.Products))
	for i, p := range req.Products {
		p = p.withDefaults()
		if p.ID == "" {
			p.ID = fmt.Sprintf("item-%d", i+1)
		}
		products = append(products, p)
	}
	if len(products) == 0 {
		products = append(products, Package{ID: "item-1"}.withDefaults())
	}
	req.Products = products
	return req, nil
}

func cacheKey(req QuoteRequest, sandbox bool) string {
	b, _ := json.Marshal(struct {
		QuoteRequest
		Sandbox bool `json:"sandbox"`
	}{req, sandbox})
	sum := sha256.Sum256(b)
	return fmt.Sprintf(redisx.KeyQuote, req.StoreUserID, hex.EncodeToString(sum[:]))
}
