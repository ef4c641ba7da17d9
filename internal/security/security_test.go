package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityConfig(t *testing.T) {
	config := DefaultSecurityConfig()

	assert.Equal(t, 60, config.MaxRequestsPerMin)
	assert.Equal(t, int64(64<<10), config.MaxBodyBytes)
	assert.Contains(t, config.AllowedOrigins, "http://localhost:3000")
	assert.Equal(t, time.Hour, config.LimiterIdleTTL)
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		hsts bool
	}{
		{name: "without hsts", hsts: false},
		{name: "with hsts", hsts: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(SecurityHeadersMiddleware(tt.hsts))
			r.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "test"})
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			assert.Equal(t, tt.hsts, w.Header().Get("Strict-Transport-Security") != "")
		})
	}
}

func TestCSPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen string
	r := gin.New()
	r.Use(CSPMiddleware(CSPConfig{ReportURI: "/csp-report"}))
	r.GET("/", func(c *gin.Context) {
		seen = GetNonce(c)
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)

	require.NotEmpty(t, seen)
	policy := w.Header().Get("Content-Security-Policy")
	assert.Contains(t, policy, "'nonce-"+seen+"'")
	assert.Contains(t, policy, "img-src 'self' data:")
	assert.Contains(t, w.Header().Get("Content-Security-Policy-Report-Only"), "report-uri /csp-report")

	// Fresh nonce per request
	first := seen
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, first, seen)
}

func TestGetNonce_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetNonce(c))
}

func TestValidateContentType(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	r := gin.New()
	r.Use(sm.ValidateContentType)
	r.POST("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tests := []struct {
		name        string
		contentType string
		expected    int
	}{
		{"json", "application/json", http.StatusOK},
		{"json with charset", "application/json; charset=utf-8", http.StatusOK},
		{"form", "application/x-www-form-urlencoded", http.StatusOK},
		{"multipart", "multipart/form-data; boundary=x", http.StatusOK},
		{"no content type", "", http.StatusOK},
		{"xml", "application/xml", http.StatusUnsupportedMediaType},
		{"plain text", "text/plain", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/test", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestRateLimitByIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	config := DefaultSecurityConfig()
	config.MaxRequestsPerMin = 10 // burst of 5
	sm := NewSecurityMiddleware(config)

	var blocked []string
	sm.OnBlock(func(ip string) { blocked = append(blocked, ip) })

	r := gin.New()
	r.Use(sm.RateLimitByIP)
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	send := func(ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/test", nil)
		req.RemoteAddr = ip + ":1234"
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send("192.0.2.1").Code, "request %d", i)
	}

	w := send("192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit", body["category"])
	assert.Equal(t, []string{"192.0.2.1"}, blocked)

	// Separate bucket per client
	assert.Equal(t, http.StatusOK, send("192.0.2.2").Code)
	assert.Equal(t, 2, sm.TrackedClients())
}

func TestCleanupOldLimiters(t *testing.T) {
	config := DefaultSecurityConfig()
	config.LimiterIdleTTL = time.Minute
	sm := NewSecurityMiddleware(config)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }
	sm.limiterFor("192.0.2.1")

	now = now.Add(30 * time.Second)
	sm.limiterFor("192.0.2.2")

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, sm.cleanupOldLimiters())
	assert.Equal(t, 1, sm.TrackedClients())
}

func TestLimitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	config := DefaultSecurityConfig()
	config.MaxBodyBytes = 16
	sm := NewSecurityMiddleware(config)

	r := gin.New()
	r.Use(sm.LimitBody)
	r.POST("/test", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, body)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/test", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/test", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
