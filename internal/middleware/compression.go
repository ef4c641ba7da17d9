package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration.
// PNG charts are already compressed and are left alone.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/html",
			"text/plain",
		},
	}
}

// CompressionMiddleware gzips buffered responses for clients that accept it
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	cm := &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
	}
	cm.pool.New = func() any {
		gz, err := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		if err != nil {
			gz = gzip.NewWriter(io.Discard)
		}
		return gz
	}
	return cm
}

// Handler returns the Gin middleware
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		bw := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = bw
		c.Next()
		c.Writer = bw.ResponseWriter

		body := bw.buf.Bytes()
		if bw.ResponseWriter.Written() {
			// Headers already went out (e.g. AbortWithStatus)
			_, _ = bw.ResponseWriter.Write(body)
			return
		}

		header := bw.Header()
		if len(body) < cm.config.MinSize ||
			header.Get("Content-Encoding") != "" ||
			!cm.shouldCompress(header.Get("Content-Type")) {
			cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
			_, _ = bw.ResponseWriter.Write(body)
			return
		}

		var out bytes.Buffer
		gz := cm.pool.Get().(*gzip.Writer)
		gz.Reset(&out)
		_, err := gz.Write(body)
		if err == nil {
			err = gz.Close()
		}
		cm.pool.Put(gz)
		if err != nil {
			cm.stats.RecordRequest(int64(len(body)), int64(len(body)), false)
			_, _ = bw.ResponseWriter.Write(body)
			return
		}

		header.Set("Content-Encoding", "gzip")
		header.Add("Vary", "Accept-Encoding")
		header.Set("Content-Length", strconv.Itoa(out.Len()))
		cm.stats.RecordRequest(int64(len(body)), int64(out.Len()), true)
		_, _ = bw.ResponseWriter.Write(out.Bytes())
	}
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// bufferedWriter holds the body until the handler chain finishes so the
// size and content type are known before choosing an encoding.
type bufferedWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.buf.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Written() bool {
	return w.buf.Len() > 0 || w.ResponseWriter.Written()
}

func (w *bufferedWriter) Size() int {
	if w.ResponseWriter.Written() {
		return w.ResponseWriter.Size()
	}
	return w.buf.Len()
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize
	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	} else {
		cs.CompressedBytes += originalSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]any {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	ratio := 1.0
	if cs.TotalBytes > 0 {
		ratio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]any{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   ratio,
		"compression_savings": 1.0 - ratio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]any {
	return cm.stats.GetStats()
}
