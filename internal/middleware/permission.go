package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/andalan-id/service-center-api/internal/models"
	"github.com/andalan-id/service-center-api/internal/service"
	appErrors "github.com/andalan-id/service-center-api/pkg/errors"
	"github.com/andalan-id/service-center-api/pkg/response"
)

// RequireAbility guards a route behind a global ability check. Checks that
// depend on the loaded subject (worker ownership and the like) stay inside
// the services; this gate covers abilities that need no subject.
func RequireAbility(permissions *service.PermissionService, ability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		allowed, err := permissions.Check(c.Request.Context(), claims.UserID, ability, nil)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !allowed {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
