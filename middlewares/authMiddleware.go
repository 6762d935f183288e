package middlewares

import (
	"strings"

	"civicconnect-be/apierrors"
	"civicconnect-be/models"
	"civicconnect-be/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
	ContextEmail  = "email"
)

// AuthMiddleware verifies the bearer token and stores its claims on the
// context. Every verification failure answers the same 401.
func AuthMiddleware(issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			apierrors.Respond(c, nil, apierrors.ErrMissingToken)
			return
		}

		// Extracting token from "Bearer <token>" format
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		claims, err := issuer.ParseToken(tokenString)
		if err != nil {
			apierrors.Respond(c, nil, apierrors.ErrInvalidToken)
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextRole)
		r, ok := role.(models.Role)
		if !ok {
			apierrors.Respond(c, nil, apierrors.ErrInvalidToken)
			return
		}
		for _, allowed := range roles {
			if r == allowed {
				c.Next()
				return
			}
		}
		apierrors.Respond(c, nil, apierrors.ErrForbidden)
	}
}
