package entity

import (
	"encoding/json"

	"hvacstock/internal/core/id"
)

// Threshold is a product's low-stock threshold setting: either it follows the
// global default or it overrides it with a non-negative value.
type Threshold struct {
	value    int
	override bool
}

// UsesDefault is the threshold of a product that follows the global default.
func UsesDefault() Threshold {
	return Threshold{}
}

// Override returns a threshold pinned to value.
func Override(value int) Threshold {
	return Threshold{value: value, override: true}
}

// ThresholdFromColumns reads the stored (low_stock_override, low_stock_threshold) pair.
// An override flag without a value reads as UsesDefault.
func ThresholdFromColumns(override bool, value *int) Threshold {
	if !override || value == nil {
		return UsesDefault()
	}
	return Override(*value)
}

// Columns returns the pair stored on the products row.
func (t Threshold) Columns() (override bool, value *int) {
	if !t.override {
		return false, nil
	}
	v := t.value
	return true, &v
}

// IsOverride reports whether the threshold overrides the default.
func (t Threshold) IsOverride() bool {
	return t.override
}

// Value returns the override value; ok is false for UsesDefault.
func (t Threshold) Value() (value int, ok bool) {
	return t.value, t.override
}

// MarshalJSON renders UsesDefault as null and Override(v) as v.
func (t Threshold) MarshalJSON() ([]byte, error) {
	if !t.override {
		return []byte("null"), nil
	}
	return json.Marshal(t.value)
}

// Product is the slice of the catalog row the inventory engine reads.
// Physical stock is not a product field; it is derived from the ledger.
type Product struct {
	ID                id.ID  `db:"id" json:"id"`
	Name              string `db:"name" json:"name"`
	SKU               string `db:"sku" json:"sku"`
	CategoryID        *id.ID `db:"category_id" json:"categoryId,omitempty"`
	LowStockThreshold *int   `db:"low_stock_threshold" json:"-"`
	LowStockOverride  bool   `db:"low_stock_override" json:"-"`
}

// Threshold returns the product's threshold setting.
func (p Product) Threshold() Threshold {
	return ThresholdFromColumns(p.LowStockOverride, p.LowStockThreshold)
}
