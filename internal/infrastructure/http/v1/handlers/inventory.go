package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hvacstock/internal/domain/inventory"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/internal/domain/reservation"
	"hvacstock/internal/domain/threshold"
	"hvacstock/internal/domain/undo"
	"hvacstock/internal/infrastructure/http/v1/dto"
)

// InventoryHandler serves per-product stock operations and the summary.
type InventoryHandler struct {
	*BaseHandler
	stock      *stock.Service
	undo       *undo.Guard
	aggregator *inventory.Aggregator
	tracker    *reservation.Tracker
	thresholds *threshold.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(
	base *BaseHandler,
	stockService *stock.Service,
	guard *undo.Guard,
	aggregator *inventory.Aggregator,
	tracker *reservation.Tracker,
	thresholds *threshold.Service,
) *InventoryHandler {
	return &InventoryHandler{
		BaseHandler: base,
		stock:       stockService,
		undo:        guard,
		aggregator:  aggregator,
		tracker:     tracker,
		thresholds:  thresholds,
	}
}

// Summary handles GET /inventory/summary
func (h *InventoryHandler) Summary(c *gin.Context) {
	var q dto.SummaryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	rows, err := h.aggregator.Summary(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": rows})
}

// Product handles GET /inventory/products/:id
func (h *InventoryHandler) Product(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	row, err := h.aggregator.ProductRow(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, row)
}

// Adjust handles POST /inventory/products/:id/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand(productID, h.ActorID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.stock.Adjust(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(movement))
}

// SetStock handles POST /inventory/products/:id/set
func (h *InventoryHandler) SetStock(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	var req dto.SetStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := req.ToCommand(productID, h.ActorID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	movement, err := h.stock.SetAbsolute(c.Request.Context(), cmd)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(movement))
}

// Undo handles POST /inventory/products/:id/undo
func (h *InventoryHandler) Undo(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	movement, err := h.undo.UndoLast(c.Request.Context(), productID, h.ActorID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMovement(movement))
}

// UndoEligibility handles GET /inventory/products/:id/undo
func (h *InventoryHandler) UndoEligibility(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	eligibility, err := h.undo.Eligibility(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, eligibility)
}

// Movements handles GET /inventory/products/:id/movements
func (h *InventoryHandler) Movements(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	var q dto.PageQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := stock.MovementFilter{Limit: q.Limit, Offset: q.Offset}.Normalize()

	movements, err := h.stock.ListMovements(c.Request.Context(), productID, filter.Limit, filter.Offset)
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.MovementResponse, len(movements))
	for i, m := range movements {
		items[i] = dto.FromMovement(m)
	}
	h.OK(c, dto.ListResponse[dto.MovementResponse]{Items: items, Limit: filter.Limit, Offset: filter.Offset})
}

// Reservations handles GET /inventory/products/:id/reservations
func (h *InventoryHandler) Reservations(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	orders, err := h.tracker.ReservedOrders(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	total := 0
	for _, o := range orders {
		total += o.Quantity
	}
	h.OK(c, gin.H{"reserved": total, "orders": orders})
}

// Threshold handles GET /inventory/products/:id/threshold
func (h *InventoryHandler) Threshold(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	view, err := h.thresholds.Get(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// SetThreshold handles PUT /inventory/products/:id/threshold
func (h *InventoryHandler) SetThreshold(c *gin.Context) {
	productID, ok := h.ProductID(c)
	if !ok {
		return
	}
	var req dto.ThresholdRequest
	if !h.BindJSON(c, &req) {
		return
	}
	value, err := req.Override()
	if err != nil {
		h.Error(c, err)
		return
	}

	view, err := h.thresholds.SetThreshold(c.Request.Context(), productID, value)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, view)
}

// SearchMovements handles GET /inventory/movements
func (h *InventoryHandler) SearchMovements(c *gin.Context) {
	var q dto.MovementQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	views, err := h.stock.SearchMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	items := make([]dto.MovementResponse, len(views))
	for i, v := range views {
		items[i] = dto.FromMovementView(v)
	}
	h.OK(c, dto.ListResponse[dto.MovementResponse]{Items: items, Limit: filter.Limit, Offset: filter.Offset})
}

// ExportMovements handles GET /inventory/movements/export
func (h *InventoryHandler) ExportMovements(c *gin.Context) {
	var q dto.MovementQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	// Rows are read before any CSV header goes out so a failure still renders as JSON.
	rows, err := h.stock.CollectMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="movements-%s.csv"`, time.Now().UTC().Format("20060102")))
	c.Status(http.StatusOK)
	if err := stock.WriteMovementsCSV(c.Writer, rows); err != nil {
		_ = c.Error(err)
	}
}
