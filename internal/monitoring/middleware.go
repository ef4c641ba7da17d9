package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MonitoringMiddleware creates Gin middleware for request monitoring
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		ip := c.ClientIP()
		userAgent := c.GetHeader("User-Agent")
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordResponseTime(duration)
		metrics.RecordRequestByStatus(statusCode)
		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, userAgent, c.GetString("request_id"), statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, statusCode)
		}

		// Kernel explanations are the slow path; flag outliers
		if duration > 5*time.Second {
			logger.PerformanceLogger("slow_request", duration.Seconds(), "seconds")
		}

		if statusCode >= 500 {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", statusCode, method, path))
		}
	}
}

// maxPredictBody is the largest predict request body considered normal
const maxPredictBody = 16 << 10

// SecurityMonitoringMiddleware logs suspicious requests. It never blocks.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userAgent := c.GetHeader("User-Agent")
		details := make(map[string]any)

		if c.Request.Method == "POST" && strings.HasSuffix(c.Request.URL.Path, "/predict") &&
			c.Request.ContentLength > maxPredictBody {
			details["type"] = "large_request_body"
			details["size_bytes"] = c.Request.ContentLength
		}

		if containsSuspiciousUserAgent(userAgent) {
			details["type"] = "suspicious_user_agent"
			details["user_agent"] = userAgent
		}

		if len(details) > 0 {
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), userAgent, details)
		}

		c.Next()
	}
}

var suspiciousAgents = []string{
	"sqlmap",
	"nmap",
	"masscan",
	"zmap",
	"dirbuster",
	"gobuster",
	"nikto",
	"acunetix",
	"nessus",
}

func containsSuspiciousUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, agent := range suspiciousAgents {
		if strings.Contains(ua, agent) {
			return true
		}
	}
	return false
}
