package shipping

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SettingsStore interface {
	ShippingSettings(ctx context.Context, storeUserID string) (*Settings, error)
}

type SettingsRepo struct{ DB *pgxpool.Pool }

func (r *SettingsRepo) ShippingSettings(ctx context.Context, storeUserID string) (*Settings, error) {
	var s Settings
	err := r.DB.QueryRow(ctx, `
		SELECT store_user_id, provider, COALESCE(api_token, ''), sandbox, is_active
		FROM store_shipping_settings
		WHERE store_user_id=$1 AND provider='melhor_envio'`, storeUserID).Scan(
		&s.StoreUserID, &s.Provider, &s.APIToken, &s.Sandbox, &s.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
