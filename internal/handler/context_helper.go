package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lessonbook-api/internal/middleware"
	"github.com/noah-isme/lessonbook-api/internal/models"
	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
	"github.com/noah-isme/lessonbook-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// mustClaims writes 401 and returns false when the request carries no identity.
func mustClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
