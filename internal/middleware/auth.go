// Package middleware provides gin middleware for the reporting API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerAPIKey      = "X-API-Key"
	headerAuth        = "Authorization"
	bearerPrefix      = "Bearer "
	unauthorizedError = "Unauthorized"
)

// APIKeyAuth rejects requests that do not carry one of the configured keys.
type APIKeyAuth struct {
	apiKeys [][]byte
	logger  *zap.Logger
}

// NewAPIKeyAuth creates the middleware. Empty keys are ignored; with no keys
// left every request is rejected.
func NewAPIKeyAuth(apiKeys []string, logger *zap.Logger) *APIKeyAuth {
	if logger == nil {
		logger = zap.NewNop()
	}

	keys := make([][]byte, 0, len(apiKeys))
	for _, key := range apiKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, []byte(key))
		}
	}

	return &APIKeyAuth{apiKeys: keys, logger: logger}
}

// Handler returns the gin middleware. The key is read from X-API-Key first,
// then from an Authorization: Bearer header.
func (a *APIKeyAuth) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.isValidAPIKey(extractAPIKey(c.Request)) {
			a.logger.Warn("unauthorized request - invalid or missing API key",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": unauthorizedError})
			return
		}
		c.Next()
	}
}

func extractAPIKey(r *http.Request) string {
	if apiKey := r.Header.Get(headerAPIKey); apiKey != "" {
		return apiKey
	}

	authHeader := r.Header.Get(headerAuth)
	if strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix)
	}

	return ""
}

// isValidAPIKey compares in constant time against every configured key.
func (a *APIKeyAuth) isValidAPIKey(provided string) bool {
	if provided == "" {
		return false
	}

	valid := 0
	for _, key := range a.apiKeys {
		valid |= subtle.ConstantTimeCompare([]byte(provided), key)
	}
	return valid == 1
}
