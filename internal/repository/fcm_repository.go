package repository

import (
	"context"
	"time"

	"restopos-backend/internal/db"
)

// DeviceTokenRepository stores push tokens registered by staff devices.
type DeviceTokenRepository struct {
	DB *db.Postgres
}

type RegisterTokenInput struct {
	TenantID string
	UserID   string
	Token    string
	Platform string
}

func (r DeviceTokenRepository) Register(ctx context.Context, in RegisterTokenInput) error {
	_, err := r.DB.Pool.Exec(ctx, `
		INSERT INTO device_tokens (token, tenant_id, user_id, platform, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, now(), now())
		ON CONFLICT (token) DO UPDATE
		SET tenant_id = EXCLUDED.tenant_id, user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = now()
	`, in.Token, in.TenantID, in.UserID, in.Platform)
	return err
}

// TokensForTenant returns every token registered under a tenant.
func (r DeviceTokenRepository) TokensForTenant(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := r.DB.Pool.Query(ctx, `SELECT token FROM device_tokens WHERE tenant_id = $1 ORDER BY updated_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Remove drops tokens the push service reported as unregistered.
func (r DeviceTokenRepository) Remove(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.DB.Pool.Exec(ctx, `DELETE FROM device_tokens WHERE token = ANY($1)`, tokens)
	return err
}

func (r DeviceTokenRepository) LastUpdated(ctx context.Context, token string) (time.Time, error) {
	var ts time.Time
	err := r.DB.Pool.QueryRow(ctx, `SELECT updated_at FROM device_tokens WHERE token=$1`, token).Scan(&ts)
	return ts, err
}
