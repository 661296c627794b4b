// Package catalog is the inventory engine's view of the product catalog.
// Catalog metadata is owned elsewhere; this package only reads products and
// writes the threshold override columns.
package catalog

import (
	"context"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
)

// Repository reads catalog products.
type Repository interface {
	// Get returns a product or apperror PRODUCT_NOT_FOUND.
	Get(ctx context.Context, productID id.ID) (entity.Product, error)

	// GetForUpdate is Get with a row lock, for threshold writes.
	GetForUpdate(ctx context.Context, productID id.ID) (entity.Product, error)

	// GetBySKUs resolves SKUs in one round trip. SKUs that do not resolve are absent from the map.
	GetBySKUs(ctx context.Context, skus []string) (map[string]entity.Product, error)

	// List returns products matching the filter, ordered by name.
	List(ctx context.Context, filter ListFilter) ([]entity.Product, error)

	// SetThreshold stores the product's threshold setting.
	SetThreshold(ctx context.Context, productID id.ID, threshold entity.Threshold) error

	// ClearOverrides resets every product to UsesDefault and returns how many were overridden.
	ClearOverrides(ctx context.Context) (int64, error)
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	CategoryID *id.ID
	// Search matches name or SKU, case-insensitive substring.
	Search string
	IDs    []id.ID
}
