package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepo struct{ DB *pgxpool.Pool }

// External ids are unique per gateway only, so every lookup is scoped by both.
func (r *PaymentRepo) FindByExternalID(ctx context.Context, gateway, externalID string) (*PixPayment, error) {
	var p PixPayment
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_id, gateway, external_payment_id, status, paid_at, created_at
		FROM pix_payments WHERE gateway=$1 AND external_payment_id=$2`, gateway, externalID).Scan(
		&p.ID, &p.OrderID, &p.Gateway, &p.ExternalPaymentID, &p.Status, &p.PaidAt, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ApprovePayment moves the payment to approved and its order to paid in one
// transaction. The payment update is conditional on status <> 'approved', so
// of several concurrent deliveries only the one whose UPDATE hits the row
// performs the transition; the others see Approved=false.
func (r *PaymentRepo) ApprovePayment(ctx context.Context, gateway, externalID string, paidAt time.Time) (ApproveResult, error) {
	res := ApproveResult{PaidAt: paidAt}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		UPDATE pix_payments SET status='approved', paid_at=$3
		WHERE gateway=$1 AND external_payment_id=$2 AND status <> 'approved'
		RETURNING order_id`, gateway, externalID, paidAt).Scan(&res.OrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		// nothing updated: either unknown or already approved
		err = tx.QueryRow(ctx, `
			SELECT order_id, status FROM pix_payments WHERE gateway=$1 AND external_payment_id=$2`,
			gateway, externalID).Scan(&res.OrderID, &res.CurrentStatus)
		if errors.Is(err, pgx.ErrNoRows) {
			return res, ErrNotFound
		}
		return res, err
	}
	if err != nil {
		return res, err
	}

	var prev Status
	if err := tx.QueryRow(ctx, `
		SELECT status, store_user_id, total_amount FROM orders WHERE id=$1 FOR UPDATE`, res.OrderID).
		Scan(&prev, &res.StoreUserID, &res.TotalAmount); err != nil {
		return res, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status='paid', pix_payment_status='approved', updated_at=now()
		WHERE id=$1`, res.OrderID); err != nil {
		return res, err
	}
	if err := recordStatusChange(ctx, tx, res.OrderID, prev, StatusPaid, "pix_payment_approved"); err != nil {
		return res, err
	}
	if err := tx.Commit(ctx); err != nil {
		return res, err
	}

	res.Approved = true
	res.CurrentStatus = PaymentApproved
	return res, nil
}

// MarkFailed moves a pending payment to failed. Approved payments are never
// touched. Returns false when nothing changed.
func (r *PaymentRepo) MarkFailed(ctx context.Context, gateway, externalID string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var orderID string
	err = tx.QueryRow(ctx, `
		UPDATE pix_payments SET status='failed'
		WHERE gateway=$1 AND external_payment_id=$2 AND status='pending'
		RETURNING order_id`, gateway, externalID).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET pix_payment_status='failed', updated_at=now() WHERE id=$1`, orderID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
