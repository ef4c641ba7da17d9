package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Logger provides enhanced structured logging with context
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger writing to stdout at the given level
func NewLogger(level slog.Level) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a JSON logger writing to w
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Add timestamp in RFC3339 format
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values fall back
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent, requestID string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"request_id", requestID,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// PredictionLogger logs one completed prediction
func (l *Logger) PredictionLogger(prediction float64, method string, fallback bool, explanationErr error, duration time.Duration) {
	attrs := []any{
		"prediction", prediction,
		"explanation_method", method,
		"fallback", fallback,
		"duration_ms", duration.Milliseconds(),
	}
	if explanationErr != nil {
		attrs = append(attrs, "explanation_error", explanationErr.Error())
		l.Warn("Prediction Completed", attrs...)
		return
	}
	l.Info("Prediction Completed", attrs...)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	// Get caller information for better debugging
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = file + ":" + strconv.Itoa(line)
	}

	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]any) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger logs performance metrics
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Log(context.Background(), slog.LevelWarn, "Performance Metric",
		"metric", metric,
		"value", value,
		"unit", unit,
	)
}

var startTime = time.Now()
