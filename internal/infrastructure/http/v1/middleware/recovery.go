// Package middleware provides HTTP middleware components.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/infrastructure/http/v1/dto"
	"hvacstock/pkg/logger"
)

// Recovery turns a panic into INTERNAL_ERROR. The stack is logged, never returned.
// It sits outside ErrorHandler, so it renders the response itself.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"route", c.FullPath(),
					"stack", string(debug.Stack()),
				)

				body := dto.ErrorResponse{
					Code:    apperror.CodeInternal,
					Message: "Internal server error",
					Details: map[string]any{"request_id": c.GetString("request_id")},
				}
				failIdempotency(c, http.StatusInternalServerError, body)
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()
		c.Next()
	}
}
