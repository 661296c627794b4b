package middleware

import (
	"github.com/gin-gonic/gin"

	"hvacstock/internal/core/apperror"
	appctx "hvacstock/internal/core/context"
)

// RequirePermission rejects users lacking permission. Admins hold every permission.
func RequirePermission(permission string) gin.HandlerFunc {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission passes users holding at least one of permissions.
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if appctx.GetUser(ctx) == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		for _, p := range permissions {
			if appctx.HasPermission(ctx, p) {
				c.Next()
				return
			}
		}

		detail := any(permissions)
		if len(permissions) == 1 {
			detail = permissions[0]
		}
		_ = c.Error(apperror.NewForbidden("insufficient permissions").WithDetail("required_permission", detail))
		c.Abort()
	}
}
