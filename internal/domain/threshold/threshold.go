// Package threshold resolves effective low-stock thresholds and owns the
// global inventory settings.
package threshold

import (
	"context"
	"time"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
)

// InitialDefault is the default threshold of a fresh installation.
const InitialDefault = 5

// Settings is the inventory settings singleton at a given version.
type Settings struct {
	DefaultLowStockThreshold int       `db:"default_low_stock_threshold" json:"defaultLowStockThreshold"`
	Version                  int64     `db:"version" json:"version"`
	UpdatedAt                time.Time `db:"updated_at" json:"updatedAt"`
	UpdatedBy                *id.ID    `db:"updated_by" json:"updatedBy,omitempty"`
}

// SettingsStore is the accessor for the settings singleton.
// Readers get a versioned snapshot and can tell whether it went stale.
type SettingsStore interface {
	// Get returns the current settings.
	Get(ctx context.Context) (Settings, error)

	// Set stores a new default and bumps the version. When expectedVersion is
	// non-nil and differs from the stored version, Set fails with
	// CONCURRENT_MODIFICATION and changes nothing.
	Set(ctx context.Context, defaultThreshold int, expectedVersion *int64, actor *id.ID) (Settings, error)
}

// Resolve returns the threshold in force for a product.
//
// A product follows the default unless it carries an override whose value
// differs from the current default; an override equal to the default
// collapses back to the default so that later default changes apply to it.
func Resolve(t entity.Threshold, s Settings) int {
	value, ok := t.Value()
	if !ok {
		return s.DefaultLowStockThreshold
	}
	if value == s.DefaultLowStockThreshold {
		return s.DefaultLowStockThreshold
	}
	return value
}

// Overrides reports whether t is in force instead of the default.
func Overrides(t entity.Threshold, s Settings) bool {
	value, ok := t.Value()
	return ok && value != s.DefaultLowStockThreshold
}
