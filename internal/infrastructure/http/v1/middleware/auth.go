package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"hvacstock/internal/core/apperror"
	appctx "hvacstock/internal/core/context"
	"hvacstock/internal/core/id"
)

// JWTValidator turns a bearer token into the acting user.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth requires a bearer token whose subject is a user UUID. That id is
// stamped as actor_id on every movement and audit entry of the request.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "missing or malformed bearer token")
			return
		}

		user, err := validator.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}
		actor, err := id.Parse(user.UserID)
		if err != nil || id.IsNil(actor) {
			abortUnauthorized(c, "token subject is not a user id")
			return
		}

		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
		c.Set("user_id", user.UserID)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
