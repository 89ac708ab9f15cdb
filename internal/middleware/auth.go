package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/GoPolymarket/frontdoor/internal/config"
	"github.com/gin-gonic/gin"
)

const (
	HeaderAPIKey      = "X-Frontdoor-Key"
	HeaderSessionID   = "X-Frontdoor-Session"
	ContextSessionKey = "frontdoor_session"
)

// AuthMiddleware guards the companion API with a single local key. With
// RequireAPIKey off every caller is accepted.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || !cfg.Auth.RequireAPIKey {
			c.Next()
			return
		}
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}
		if cfg.Auth.APIKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(cfg.Auth.APIKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}
