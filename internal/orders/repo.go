package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var (
		o      Order
		pixRaw *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, store_user_id, status, total_amount, customer_name, customer_email,
		       COALESCE(customer_phone, ''), payment_method, pix_payment_status, created_at, updated_at
		FROM orders WHERE id=$1`, orderID).Scan(
		&o.ID, &o.StoreUserID, &o.Status, &o.TotalAmount, &o.CustomerName, &o.CustomerEmail,
		&o.CustomerPhone, &o.PaymentMethod, &pixRaw, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if pixRaw != nil {
		o.PixPaymentStatus = PaymentStatus(*pixRaw)
	}
	return &o, nil
}

// UpdateStatus is the manual (dashboard) status change. The row is locked so
// the transition check and the write see the same status.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status, reason string) (from Status, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if _, err = tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, orderID, to); err != nil {
		return from, err
	}
	if err = recordStatusChange(ctx, tx, orderID, from, to, reason); err != nil {
		return from, err
	}
	return from, tx.Commit(ctx)
}

func recordStatusChange(ctx context.Context, tx pgx.Tx, orderID string, from, to Status, reason string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history(id, order_id, old_status, new_status, reason)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), orderID, from, to, reason,
	)
	return err
}
