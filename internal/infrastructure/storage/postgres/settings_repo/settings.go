// Package settings_repo stores the inventory settings singleton.
package settings_repo

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/threshold"
	"hvacstock/internal/infrastructure/storage/postgres"
)

// singletonID is the primary key of the only settings row.
const singletonID = 1

// SettingsRepo implements threshold.SettingsStore over inventory_settings.
type SettingsRepo struct {
	txManager *postgres.TxManager
}

var _ threshold.SettingsStore = (*SettingsRepo)(nil)

func NewSettingsRepo(txManager *postgres.TxManager) *SettingsRepo {
	return &SettingsRepo{txManager: txManager}
}

// Get returns the current settings.
// A missing row reads as the initial default at version 0.
func (r *SettingsRepo) Get(ctx context.Context) (threshold.Settings, error) {
	var s threshold.Settings
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &s, `
		SELECT default_low_stock_threshold, version, updated_at, updated_by
		FROM inventory_settings
		WHERE id = $1
	`, singletonID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return threshold.Settings{DefaultLowStockThreshold: threshold.InitialDefault}, nil
		}
		return threshold.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// Set stores a new default with an optional version check.
func (r *SettingsRepo) Set(ctx context.Context, defaultThreshold int, expectedVersion *int64, actor *id.ID) (threshold.Settings, error) {
	if defaultThreshold < 0 {
		return threshold.Settings{}, apperror.NewValidation("default threshold must be non-negative")
	}

	var s threshold.Settings
	err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &s, `
		INSERT INTO inventory_settings (id, default_low_stock_threshold, version, updated_at, updated_by)
		VALUES ($1, $2, 1, NOW(), $3)
		ON CONFLICT (id) DO UPDATE
		SET default_low_stock_threshold = EXCLUDED.default_low_stock_threshold,
		    version = inventory_settings.version + 1,
		    updated_at = EXCLUDED.updated_at,
		    updated_by = EXCLUDED.updated_by
		WHERE $4::bigint IS NULL OR inventory_settings.version = $4::bigint
		RETURNING default_low_stock_threshold, version, updated_at, updated_by
	`, singletonID, defaultThreshold, actor, expectedVersion)
	if err != nil {
		if pgxscan.NotFound(err) {
			return threshold.Settings{}, apperror.NewConcurrentModification("inventory_settings", singletonID)
		}
		return threshold.Settings{}, fmt.Errorf("set settings: %w", err)
	}
	return s, nil
}
