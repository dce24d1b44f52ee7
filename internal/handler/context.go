package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/andalan-id/service-center-api/internal/middleware"
	"github.com/andalan-id/service-center-api/internal/models"
)

// currentClaims extracts the authenticated JWT claims from the request
// context, or nil when the route ran without the JWT middleware.
func currentClaims(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
