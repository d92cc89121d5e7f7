package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
)

type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to orders.Status, reason string) (orders.Status, error)
}

type OrderStatusCache interface {
	Get(ctx context.Context, orderID string) ([]byte, bool, error)
	Set(ctx context.Context, orderID string, body []byte) error
	Invalidate(ctx context.Context, orderID string) error
}

type OrdersHandler struct {
	Repo  OrderStore
	Cache OrderStatusCache // optional
}

type orderStatusView struct {
	ID               string               `json:"id"`
	Status           orders.Status        `json:"status"`
	PixPaymentStatus orders.PaymentStatus `json:"pix_payment_status,omitempty"`
	TotalAmount      float64              `json:"total_amount"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status"`
	Reason string        `json:"reason"`
}

type UpdateStatusResp struct {
	ID             string        `json:"id"`
	PreviousStatus orders.Status `json:"previous_status"`
	Status         orders.Status `json:"status"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		if b, ok, err := h.Cache.Get(ctx, orderID); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(b)
			return
		}
	}

	// 2) database
	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			slog.ErrorContext(ctx, "get order", "order_id", orderID, "err", err)
			writeError(w, code, "internal error")
			return
		}
		writeError(w, code, "not found")
		return
	}

	b, _ := json.Marshal(orderStatusView{
		ID:               o.ID,
		Status:           o.Status,
		PixPaymentStatus: o.PixPaymentStatus,
		TotalAmount:      o.TotalAmount,
		UpdatedAt:        o.UpdatedAt,
	})
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, orderID, b); err != nil {
			slog.WarnContext(ctx, "order status cache set", "order_id", orderID, "err", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// updateStatus is the dashboard's manual transition.
func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	prev, err := h.Repo.UpdateStatus(ctx, orderID, req.Status, req.Reason)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			slog.ErrorContext(ctx, "update order status", "order_id", orderID, "err", err)
			writeError(w, code, "internal error")
			return
		}
		writeError(w, code, err.Error())
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, orderID); err != nil {
			slog.WarnContext(ctx, "order status cache invalidate", "order_id", orderID, "err", err)
		}
	}
	slog.InfoContext(ctx, "order status changed", "order_id", orderID, "from", prev, "to", req.Status)
	writeJSON(w, http.StatusOK, UpdateStatusResp{ID: orderID, PreviousStatus: prev, Status: req.Status})
}
