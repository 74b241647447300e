package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
	"github.com/noah-isme/lessonbook-api/pkg/response"
)

// InternalTokenHeader carries the shared secret of trusted service callers.
const InternalTokenHeader = "X-Internal-Token"

// InternalToken guards service-to-service routes with a shared secret. An empty
// secret disables the routes.
func InternalToken(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "internal endpoints are disabled"))
			c.Abort()
			return
		}
		provided := c.GetHeader(InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid internal token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
