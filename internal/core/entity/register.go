// Package entity provides core domain entities.
package entity

import (
	"fmt"
	"strings"
	"time"

	"hvacstock/internal/core/id"
)

// Reason classifies why a stock movement was recorded.
type Reason string

const (
	ReasonSale        Reason = "sale"
	ReasonPOReceipt   Reason = "po_receipt"
	ReasonManualIn    Reason = "manual_in"
	ReasonManualOut   Reason = "manual_out"
	ReasonAdjust      Reason = "adjust"
	ReasonReturnIn    Reason = "return_in"
	ReasonTransferOut Reason = "transfer_out"
	ReasonTransferIn  Reason = "transfer_in"
	ReasonCSVImport   Reason = "csv_import"
)

// undoPrefix marks inverse movements appended by an undo: "undo:<short id>".
const undoPrefix = "undo:"

var knownReasons = []Reason{
	ReasonSale, ReasonPOReceipt, ReasonManualIn, ReasonManualOut, ReasonAdjust,
	ReasonReturnIn, ReasonTransferOut, ReasonTransferIn, ReasonCSVImport,
}

// Reasons lists the reasons a caller may pick directly (undo reasons are derived).
func Reasons() []Reason {
	out := make([]Reason, len(knownReasons))
	copy(out, knownReasons)
	return out
}

// UndoReason builds the reason of the inverse movement for movementID.
func UndoReason(movementID id.ID) Reason {
	return Reason(undoPrefix + id.Short(movementID))
}

// IsUndo reports whether r was produced by UndoReason.
func (r Reason) IsUndo() bool {
	return strings.HasPrefix(string(r), undoPrefix) && len(r) > len(undoPrefix)
}

// Valid reports whether r is a known reason or a well-formed undo reason.
func (r Reason) Valid() bool {
	if r.IsUndo() {
		return true
	}
	for _, k := range knownReasons {
		if r == k {
			return true
		}
	}
	return false
}

// ParseReason validates a caller-supplied reason string.
func ParseReason(s string) (Reason, error) {
	r := Reason(strings.TrimSpace(s))
	if !r.Valid() {
		return "", fmt.Errorf("unknown movement reason %q", s)
	}
	return r, nil
}

// StockMovement is one signed, immutable quantity change for a product.
// Corrections are new movements; rows are never updated or deleted.
type StockMovement struct {
	ID        id.ID     `db:"id" json:"id"`
	ProductID id.ID     `db:"product_id" json:"productId"`
	Delta     int       `db:"delta" json:"delta"`
	Reason    Reason    `db:"reason" json:"reason"`
	OrderID   *id.ID    `db:"order_id" json:"orderId,omitempty"`
	BatchID   *id.ID    `db:"batch_id" json:"batchId,omitempty"`
	ActorID   *id.ID    `db:"actor_id" json:"actorId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// StockBalance is the per-product aggregate kept in step with the ledger.
// Physical always equals the sum of the product's movement deltas.
type StockBalance struct {
	ProductID      id.ID     `db:"product_id" json:"productId"`
	Physical       int       `db:"physical" json:"physical"`
	LastMovementID *id.ID    `db:"last_movement_id" json:"lastMovementId,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// MovementView is a movement joined with catalog fields for history screens and export.
type MovementView struct {
	StockMovement
	ProductName string `db:"product_name" json:"productName"`
	SKU         string `db:"sku" json:"sku"`
}
