package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-pix-reconciler/internal/shipping"
)

type Quoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) (shipping.QuoteResponse, int)
}

type ShippingHandler struct {
	Quotes Quoter
}

func (h *ShippingHandler) Register(r *chi.Mux) {
	r.Post("/shipping/quotes", h.quote)
}

func (h *ShippingHandler) quote(w http.ResponseWriter, r *http.Request) {
	defer recoverJSON(w, shipping.QuoteResponse{Error: "internal error", Quotes: []shipping.Quote{}})

	var req shipping.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, shipping.QuoteResponse{Error: "invalid json", Quotes: []shipping.Quote{}})
		return
	}
	resp, code := h.Quotes.Quote(r.Context(), req)
	writeJSON(w, code, resp)
}
