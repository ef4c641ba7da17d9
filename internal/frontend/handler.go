package frontend

import (
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/stacking-predict/internal/analysis"
	"github.com/ZanzyTHEbar/stacking-predict/internal/cache"
	apperrors "github.com/ZanzyTHEbar/stacking-predict/internal/errors"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
	"github.com/ZanzyTHEbar/stacking-predict/internal/security"
)

// Pipeline is the part of the analyzer the page needs
type Pipeline interface {
	Catalogue() *schema.Catalogue
	Analyze(values schema.Values) (*analysis.Result, error)
}

// Options configures the page handler
type Options struct {
	// FigurePaths are pre-rendered images shown below the result. Missing
	// files produce a warning on the page.
	FigurePaths []string
	// FigureCache holds figure bytes keyed by path and modification time.
	// Nil serves every request from disk.
	FigureCache *cache.Cache[[]byte]
	MaxDisplay  int
	Logger      *slog.Logger
}

// Handler serves the prediction form
type Handler struct {
	pipeline Pipeline
	tmpl     *template.Template
	opts     Options
	logger   *slog.Logger
}

// NewHandler parses the embedded template and binds it to a pipeline
func NewHandler(p Pipeline, opts Options) (*Handler, error) {
	templates, err := GetTemplateFS()
	if err != nil {
		return nil, err
	}
	tmpl, err := LoadIndexTemplate(templates)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pipeline: p, tmpl: tmpl, opts: opts, logger: logger}, nil
}

// Register mounts the page routes. guard runs before form submissions only.
func (h *Handler) Register(r gin.IRoutes, guard ...gin.HandlerFunc) {
	r.GET("/", h.Index)
	r.POST("/predict", append(guard, h.Predict)...)
	r.GET("/figures/:index", h.Figure)
}

// Index renders the form with default values
func (h *Handler) Index(c *gin.Context) {
	h.render(c, http.StatusOK, h.page(c, nil))
}

// Predict scores a submitted form and renders the result
func (h *Handler) Predict(c *gin.Context) {
	catalogue := h.pipeline.Catalogue()

	form := make(map[string]string, catalogue.Len())
	for _, name := range catalogue.FeatureNames() {
		if v, ok := c.GetPostForm(name); ok {
			form[name] = v
		}
	}
	data := h.page(c, form)

	values, err := catalogue.ParseForm(form)
	if err == nil {
		var result *analysis.Result
		result, err = h.pipeline.Analyze(values)
		if err == nil {
			chartURI, chartErr := renderChart(result.Attribution, h.opts.MaxDisplay)
			if chartErr != nil {
				h.logger.Error("failed to render waterfall", "error", chartErr)
				data.Warnings = append(data.Warnings, "The waterfall chart could not be drawn.")
			}
			data.Result = newResultView(result, chartURI)
			h.render(c, http.StatusOK, data)
			return
		}
	}

	appErr := apperrors.ToAppError(err)
	appErr.RequestID = c.GetString("request_id")
	apperrors.LogError(c, appErr)
	data.Error = apperrors.UserMessage(appErr)
	h.render(c, appErr.HTTPStatus, data)
}

// Figure serves one configured figure by index
func (h *Handler) Figure(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 || idx >= len(h.opts.FigurePaths) {
		c.JSON(http.StatusNotFound, gin.H{"error": "figure not found"})
		return
	}
	path := h.opts.FigurePaths[idx]
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		h.logger.Warn("figure file missing", "path", path)
		c.JSON(http.StatusNotFound, gin.H{"error": "figure not found"})
		return
	}
	if h.opts.FigureCache == nil {
		c.File(path)
		return
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
	data, ok := h.opts.FigureCache.Get(key)
	if !ok {
		if data, err = os.ReadFile(path); err != nil {
			h.logger.Warn("figure file unreadable", "path", path, "error", err)
			c.JSON(http.StatusNotFound, gin.H{"error": "figure not found"})
			return
		}
		h.opts.FigureCache.Set(key, data)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) page(c *gin.Context, submitted map[string]string) pageData {
	data := pageData{
		Nonce:  security.GetNonce(c),
		Title:  pageTitle,
		Fields: fieldViews(h.pipeline.Catalogue(), submitted),
	}
	data.Figures, data.Warnings = h.figures()
	return data
}

// figures is re-evaluated per request so files added after startup show up
func (h *Handler) figures() ([]figureView, []string) {
	var figures []figureView
	var warnings []string
	for i, path := range h.opts.FigurePaths {
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			warnings = append(warnings, fmt.Sprintf("Figure %q was not found.", filepath.Base(path)))
			continue
		}
		figures = append(figures, figureView{
			URL:     "/figures/" + strconv.Itoa(i),
			Caption: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		})
	}
	return figures, warnings
}

func (h *Handler) render(c *gin.Context, status int, data pageData) {
	if data.Nonce == "" {
		nonce, err := security.GenerateNonce()
		if err != nil {
			h.logger.Error("failed to generate nonce", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		data.Nonce = nonce
	}
	if err := RenderPage(c, h.tmpl, status, data); err != nil {
		h.logger.Error("failed to render page", "error", err, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to render page"})
	}
}
