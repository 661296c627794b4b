package handlers

import (
	"github.com/gin-gonic/gin"

	"hvacstock/internal/domain/threshold"
	"hvacstock/internal/infrastructure/http/v1/dto"
)

// SettingsHandler serves the inventory settings singleton.
type SettingsHandler struct {
	*BaseHandler
	thresholds *threshold.Service
}

func NewSettingsHandler(base *BaseHandler, thresholds *threshold.Service) *SettingsHandler {
	return &SettingsHandler{BaseHandler: base, thresholds: thresholds}
}

// Get handles GET /inventory/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.thresholds.Settings(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, settings)
}

// Update handles PUT /inventory/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.thresholds.UpdateDefault(c.Request.Context(), threshold.UpdateDefaultCommand{
		Value:           *req.DefaultLowStockThreshold,
		ResetOverrides:  req.ResetOverrides,
		ExpectedVersion: req.Version,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
