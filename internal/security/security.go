package security

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "github.com/ZanzyTHEbar/stacking-predict/internal/errors"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxRequestsPerMin int           `json:"max_requests_per_min" yaml:"max_requests_per_min"`
	MaxBodyBytes      int64         `json:"max_body_bytes" yaml:"max_body_bytes"`
	AllowedOrigins    []string      `json:"allowed_origins" yaml:"allowed_origins"`
	LimiterIdleTTL    time.Duration `json:"limiter_idle_ttl" yaml:"limiter_idle_ttl"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxRequestsPerMin: 60,
		MaxBodyBytes:      64 << 10,
		AllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
		LimiterIdleTTL:    time.Hour,
	}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SecurityMiddleware throttles scoring requests per client IP and bounds
// request size and duration.
type SecurityMiddleware struct {
	config     SecurityConfig
	mu         sync.Mutex
	ipLimiters map[string]*ipLimiter
	onBlock    func(ip string)
	now        func() time.Time
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	if config.MaxRequestsPerMin <= 0 {
		config.MaxRequestsPerMin = DefaultSecurityConfig().MaxRequestsPerMin
	}
	if config.LimiterIdleTTL <= 0 {
		config.LimiterIdleTTL = time.Hour
	}
	return &SecurityMiddleware{
		config:     config,
		ipLimiters: make(map[string]*ipLimiter),
		now:        time.Now,
	}
}

// OnBlock registers a callback run whenever a request is rejected by the
// rate limiter.
func (sm *SecurityMiddleware) OnBlock(fn func(ip string)) {
	sm.onBlock = fn
}

func (sm *SecurityMiddleware) limiterFor(ip string) *rate.Limiter {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	entry, ok := sm.ipLimiters[ip]
	if !ok {
		rps := rate.Limit(float64(sm.config.MaxRequestsPerMin) / 60.0)
		// Allow half a minute's worth up front
		burst := sm.config.MaxRequestsPerMin / 2
		if burst < 5 {
			burst = 5
		}
		entry = &ipLimiter{limiter: rate.NewLimiter(rps, burst)}
		sm.ipLimiters[ip] = entry
	}
	entry.lastSeen = sm.now()
	return entry.limiter
}

// RateLimitByIP implements per-IP rate limiting
func (sm *SecurityMiddleware) RateLimitByIP(c *gin.Context) {
	clientIP := c.ClientIP()

	if !sm.limiterFor(clientIP).Allow() {
		if sm.onBlock != nil {
			sm.onBlock(clientIP)
		}
		appErr := apperrors.NewRateLimitError("60")
		appErr.RequestID = c.GetString("request_id")
		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Response())
		return
	}

	c.Next()
}

// ValidateContentType rejects bodies that are neither JSON nor form data
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType == "" || c.Request.Method == http.MethodGet {
		c.Next()
		return
	}

	for _, allowed := range []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	} {
		if strings.Contains(contentType, allowed) {
			c.Next()
			return
		}
	}

	c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
		"error": "unsupported content type",
	})
}

// LimitBody caps the request body size
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if sm.config.MaxBodyBytes > 0 && c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// Cleanup evicts idle limiters until ctx is done
func (sm *SecurityMiddleware) Cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.cleanupOldLimiters()
			}
		}
	}()
}

// cleanupOldLimiters removes limiters for IPs idle longer than the TTL
func (sm *SecurityMiddleware) cleanupOldLimiters() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	cutoff := sm.now().Add(-sm.config.LimiterIdleTTL)
	removed := 0
	for ip, entry := range sm.ipLimiters {
		if entry.lastSeen.Before(cutoff) {
			delete(sm.ipLimiters, ip)
			removed++
		}
	}
	return removed
}

// TrackedClients reports how many client IPs currently hold a limiter
func (sm *SecurityMiddleware) TrackedClients() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.ipLimiters)
}
