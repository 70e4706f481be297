package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// requireInternalKey guards service-to-service endpoints with the shared
// key from the deployment volume.
func (s *Server) requireInternalKey(c *gin.Context) {
	provided := c.GetHeader("X-Internal-Key")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.internalKey)) != 1 {
		slog.Warn("Rejected internal request with bad key", "path", c.FullPath())
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid internal API key"})
		return
	}
	c.Next()
}
