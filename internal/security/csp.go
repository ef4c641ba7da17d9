package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/gin-gonic/gin"
)

const nonceKey = "csp-nonce"

// CSPConfig controls the Content-Security-Policy header
type CSPConfig struct {
	// ReportURI, when set, also emits a report-only policy
	ReportURI string
}

// GenerateNonce generates a cryptographically secure random nonce. The
// URL-safe alphabet passes through HTML attribute escaping unchanged.
func GenerateNonce() (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(nonceBytes), nil
}

// CSPMiddleware generates a per-request nonce for the form page's inline
// script and style blocks and sets the CSP header.
func CSPMiddleware(cfg CSPConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := GenerateNonce()
		if err != nil {
			c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
			return
		}

		c.Set(nonceKey, nonce)

		policy := buildCSPPolicy(nonce)
		c.Header("Content-Security-Policy", policy)
		if cfg.ReportURI != "" {
			c.Header("Content-Security-Policy-Report-Only", policy+"; report-uri "+cfg.ReportURI)
		}

		c.Next()
	}
}

// GetNonce retrieves the nonce from the Gin context
func GetNonce(c *gin.Context) string {
	if nonce, exists := c.Get(nonceKey); exists {
		if nonceStr, ok := nonce.(string); ok {
			return nonceStr
		}
	}
	return ""
}

// Waterfall charts are inlined as data: URIs, figures come from /figures.
func buildCSPPolicy(nonce string) string {
	return fmt.Sprintf(
		"default-src 'self'; "+
			"script-src 'self' 'nonce-%s'; "+
			"style-src 'self' 'nonce-%s'; "+
			"img-src 'self' data:; "+
			"font-src 'self' data:; "+
			"connect-src 'self'; "+
			"frame-ancestors 'none'; "+
			"base-uri 'self'; "+
			"form-action 'self'",
		nonce, nonce,
	)
}
