package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Insert(ctx context.Context, n Notification) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO store_notifications(id, store_user_id, order_id, kind, title, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id, kind) DO NOTHING`,
		n.ID, n.StoreUserID, n.OrderID, n.Kind, n.Title, n.Body, n.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
