package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Orders and pix_payments rows are created by checkout; this service only
// reads and advances them. The tables are declared here so a fresh database
// (local dev, CI) has the columns the repositories expect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id                 TEXT PRIMARY KEY,
		store_user_id      TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending','paid','processing','shipped','delivered','cancelled')),
		total_amount       NUMERIC(12,2) NOT NULL DEFAULT 0,
		customer_name      TEXT NOT NULL DEFAULT '',
		customer_email     TEXT NOT NULL DEFAULT '',
		customer_phone     TEXT,
		payment_method     TEXT NOT NULL DEFAULT 'pix',
		pix_payment_status TEXT CHECK (pix_payment_status IN ('pending','approved','failed')),
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS pix_payments (
		id                  TEXT PRIMARY KEY,
		order_id            TEXT NOT NULL REFERENCES orders(id),
		gateway             TEXT NOT NULL,
		external_payment_id TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending','approved','failed')),
		paid_at             TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (gateway, external_payment_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_status_history (
		id         TEXT PRIMARY KEY,
		order_id   TEXT NOT NULL REFERENCES orders(id),
		old_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS store_shipping_settings (
		store_user_id TEXT NOT NULL,
		provider      TEXT NOT NULL DEFAULT 'melhor_envio',
		api_token     TEXT,
		sandbox       BOOLEAN NOT NULL DEFAULT true,
		is_active     BOOLEAN NOT NULL DEFAULT false,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (store_user_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS store_notifications (
		id            TEXT PRIMARY KEY,
		store_user_id TEXT NOT NULL,
		order_id      TEXT NOT NULL,
		kind          TEXT NOT NULL,
		title         TEXT NOT NULL,
		body          TEXT NOT NULL,
		read_at       TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (order_id, kind)
	)`,
}

// Migrate applies the idempotent schema statements in order.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
