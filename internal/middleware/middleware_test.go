package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressionRouter(cm *CompressionMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(cm.Handler())
	r.GET("/big", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": strings.Repeat("shap ", 1000)})
	})
	r.GET("/small", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/png", func(c *gin.Context) {
		c.Data(http.StatusOK, "image/png", bytes.Repeat([]byte{0x89}, 4096))
	})
	r.GET("/abort", func(c *gin.Context) {
		c.AbortWithStatus(http.StatusNoContent)
	})
	return r
}

func TestCompression(t *testing.T) {
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	r := compressionRouter(cm)

	tests := []struct {
		name       string
		path       string
		acceptGzip bool
		compressed bool
		status     int
	}{
		{name: "large json", path: "/big", acceptGzip: true, compressed: true, status: http.StatusOK},
		{name: "client without gzip", path: "/big", acceptGzip: false, compressed: false, status: http.StatusOK},
		{name: "small body", path: "/small", acceptGzip: true, compressed: false, status: http.StatusOK},
		{name: "png", path: "/png", acceptGzip: true, compressed: false, status: http.StatusOK},
		{name: "abort", path: "/abort", acceptGzip: true, compressed: false, status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", tt.path, nil)
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip, deflate")
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if !tt.compressed {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
				return
			}

			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			plain, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Contains(t, string(plain), `"data":"shap shap`)
		})
	}

	stats := cm.GetStats()
	assert.Equal(t, int64(1), stats["compressed_requests"])
	assert.Less(t, stats["compression_ratio"].(float64), 1.0)
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen = c.GetString(RequestIDKey)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	r.ServeHTTP(w, req)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	incoming := uuid.NewString()
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, incoming)
	r.ServeHTTP(w, req)
	assert.Equal(t, incoming, seen)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", seen)
}
