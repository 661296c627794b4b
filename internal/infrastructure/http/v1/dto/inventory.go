package dto

import (
	"encoding/json"
	"strings"
	"time"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/inventory"
	"hvacstock/internal/domain/registers/stock"
)

// --- Request DTOs ---

// AdjustRequest is the body of POST /inventory/products/:id/adjust.
type AdjustRequest struct {
	Delta   int     `json:"delta" binding:"required,min=-1000000000,max=1000000000"`
	Reason  string  `json:"reason" binding:"required"`
	OrderID *string `json:"orderId" binding:"omitempty,uuid"`
	Comment string  `json:"comment" binding:"max=500"`
}

// ToCommand converts the request for the stock service.
func (r *AdjustRequest) ToCommand(productID, actorID id.ID) (stock.AdjustCommand, error) {
	reason, err := entity.ParseReason(r.Reason)
	if err != nil {
		return stock.AdjustCommand{}, apperror.NewValidation(err.Error())
	}
	if reason.IsUndo() {
		return stock.AdjustCommand{}, apperror.NewValidation("undo movements are created by the undo endpoint")
	}

	cmd := stock.AdjustCommand{
		ProductID: productID,
		Delta:     r.Delta,
		Reason:    reason,
		ActorID:   actorID,
		Comment:   r.Comment,
	}
	if r.OrderID != nil {
		orderID, err := id.Parse(*r.OrderID)
		if err != nil {
			return stock.AdjustCommand{}, apperror.NewValidation("invalid orderId format")
		}
		cmd.OrderID = &orderID
	}
	return cmd, nil
}

// SetStockRequest is the body of POST /inventory/products/:id/set.
type SetStockRequest struct {
	Target  *int   `json:"target" binding:"required,min=0,max=1000000000"`
	Reason  string `json:"reason" binding:"required"`
	Comment string `json:"comment" binding:"max=500"`
}

// ToCommand converts the request for the stock service.
func (r *SetStockRequest) ToCommand(productID, actorID id.ID) (stock.SetCommand, error) {
	reason, err := entity.ParseReason(r.Reason)
	if err != nil || reason.IsUndo() {
		return stock.SetCommand{}, apperror.NewValidation("invalid reason").WithDetail("reason", r.Reason)
	}
	return stock.SetCommand{
		ProductID: productID,
		Target:    *r.Target,
		Reason:    reason,
		ActorID:   actorID,
		Comment:   r.Comment,
	}, nil
}

// ThresholdRequest is the body of PUT /inventory/products/:id/threshold.
// A null value clears the override.
type ThresholdRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// Override returns nil for a null value.
func (r *ThresholdRequest) Override() (*int, error) {
	if strings.TrimSpace(string(r.Value)) == "null" {
		return nil, nil
	}
	var v int
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return nil, apperror.NewValidation("value must be an integer or null")
	}
	return &v, nil
}

// UpdateSettingsRequest is the body of PUT /inventory/settings.
type UpdateSettingsRequest struct {
	DefaultLowStockThreshold *int   `json:"defaultLowStockThreshold" binding:"required,min=0"`
	ResetOverrides           bool   `json:"resetOverrides"`
	Version                  *int64 `json:"version" binding:"omitempty,min=0"`
}

// SummaryQuery are the query parameters of GET /inventory/summary.
type SummaryQuery struct {
	CategoryID string `form:"categoryId" binding:"omitempty,uuid"`
	Search     string `form:"search" binding:"max=100"`
	// Status is a comma-separated list such as OUT,CRITICAL.
	Status string `form:"status"`
}

// ToFilter converts the query for the aggregator.
func (q *SummaryQuery) ToFilter() (inventory.Filter, error) {
	filter := inventory.Filter{Search: strings.TrimSpace(q.Search)}
	var err error
	if filter.CategoryID, err = parseOptionalID(q.CategoryID, "categoryId"); err != nil {
		return filter, err
	}
	for _, s := range splitList(q.Status) {
		status, err := inventory.ParseStatus(s)
		if err != nil {
			return filter, err
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return filter, nil
}

// MovementQuery are the query parameters of GET /inventory/movements.
type MovementQuery struct {
	PageQuery
	ProductID  string     `form:"productId" binding:"omitempty,uuid"`
	CategoryID string     `form:"categoryId" binding:"omitempty,uuid"`
	BatchID    string     `form:"batchId" binding:"omitempty,uuid"`
	Reason     string     `form:"reason"`
	Search     string     `form:"search" binding:"max=100"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ToFilter converts the query for the ledger.
func (q *MovementQuery) ToFilter() (stock.MovementFilter, error) {
	filter := stock.MovementFilter{
		Search:   strings.TrimSpace(q.Search),
		FromDate: q.From,
		ToDate:   q.To,
		Limit:    q.Limit,
		Offset:   q.Offset,
	}
	var err error
	if filter.ProductID, err = parseOptionalID(q.ProductID, "productId"); err != nil {
		return filter, err
	}
	if filter.CategoryID, err = parseOptionalID(q.CategoryID, "categoryId"); err != nil {
		return filter, err
	}
	if filter.BatchID, err = parseOptionalID(q.BatchID, "batchId"); err != nil {
		return filter, err
	}
	for _, s := range splitList(q.Reason) {
		reason, err := entity.ParseReason(s)
		if err != nil {
			return filter, apperror.NewValidation(err.Error())
		}
		filter.Reasons = append(filter.Reasons, reason)
	}
	return filter.Normalize(), nil
}

func parseOptionalID(raw, field string) (*id.ID, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := id.Parse(raw)
	if err != nil {
		return nil, apperror.NewValidation("invalid " + field + " format")
	}
	return &parsed, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// --- Response DTOs ---

// MovementResponse is one ledger row.
type MovementResponse struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	OrderID   *string   `json:"orderId,omitempty"`
	BatchID   *string   `json:"batchId,omitempty"`
	ActorID   *string   `json:"actorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	ProductName string `json:"productName,omitempty"`
	SKU         string `json:"sku,omitempty"`
}

// FromMovement creates MovementResponse from entity.StockMovement.
func FromMovement(m entity.StockMovement) MovementResponse {
	return MovementResponse{
		ID:        m.ID.String(),
		ProductID: m.ProductID.String(),
		Delta:     m.Delta,
		Reason:    string(m.Reason),
		OrderID:   optionalID(m.OrderID),
		BatchID:   optionalID(m.BatchID),
		ActorID:   optionalID(m.ActorID),
		CreatedAt: m.CreatedAt,
	}
}

// FromMovementView adds the catalog fields.
func FromMovementView(v entity.MovementView) MovementResponse {
	r := FromMovement(v.StockMovement)
	r.ProductName = v.ProductName
	r.SKU = v.SKU
	return r
}

func optionalID(v *id.ID) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
