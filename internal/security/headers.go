package security

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeadersMiddleware adds security headers to all responses. HSTS is
// only sent when enabled since the form is often served over plain HTTP on
// a clinic LAN.
func SecurityHeadersMiddleware(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		// Inputs describe a patient, keep them out of shared caches
		c.Header("Cache-Control", "no-store")

		if hsts {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
