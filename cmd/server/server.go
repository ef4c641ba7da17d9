package main

import (
	"errors"
	"net/http"
	"net/http/pprof"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/stacking-predict/docs"
	"github.com/ZanzyTHEbar/stacking-predict/internal/analysis"
	"github.com/ZanzyTHEbar/stacking-predict/internal/cache"
	"github.com/ZanzyTHEbar/stacking-predict/internal/chart"
	"github.com/ZanzyTHEbar/stacking-predict/internal/config"
	apperrors "github.com/ZanzyTHEbar/stacking-predict/internal/errors"
	"github.com/ZanzyTHEbar/stacking-predict/internal/frontend"
	"github.com/ZanzyTHEbar/stacking-predict/internal/middleware"
	"github.com/ZanzyTHEbar/stacking-predict/internal/model"
	"github.com/ZanzyTHEbar/stacking-predict/internal/monitoring"
	"github.com/ZanzyTHEbar/stacking-predict/internal/schema"
	"github.com/ZanzyTHEbar/stacking-predict/internal/security"
	"github.com/ZanzyTHEbar/stacking-predict/internal/types"
)

// observedPipeline records metrics and a log line for every analysis
type observedPipeline struct {
	*analysis.Analyzer
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
}

func (p *observedPipeline) Analyze(values schema.Values) (*analysis.Result, error) {
	result, err := p.Analyzer.Analyze(values)
	if err != nil {
		var verr *schema.ValidationError
		var eerr *analysis.EncodingError
		if errors.As(err, &verr) || errors.As(err, &eerr) {
			p.metrics.IncrementValidationFailure()
		} else {
			p.metrics.IncrementPredictionFailure()
		}
		return nil, err
	}

	var method string
	var fallback bool
	if result.Attribution != nil {
		method = string(result.Attribution.Method)
		fallback = result.Attribution.Fallback
	}
	p.metrics.RecordPrediction(method, fallback, result.ExplanationError != nil)
	p.logger.PredictionLogger(result.Prediction, method, fallback, result.ExplanationError, result.Duration)
	return result, nil
}

type server struct {
	cfg         *config.Config
	pipeline    *observedPipeline
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
	security    *security.SecurityMiddleware
	compression *middleware.CompressionMiddleware
	figures     *cache.Cache[[]byte]
	started     time.Time
}

func newServer(cfg *config.Config, analyzer *analysis.Analyzer, logger *monitoring.Logger) *server {
	metrics := monitoring.NewMetrics()
	sm := security.NewSecurityMiddleware(cfg.Security)
	sm.OnBlock(func(ip string) {
		metrics.IncrementRateLimitBlock()
		logger.SecurityLogger("rate_limited", ip, "", nil)
	})

	var figures *cache.Cache[[]byte]
	if cfg.FigureCacheTTL > 0 && len(cfg.FigurePaths) > 0 {
		figures = cache.New[[]byte](cfg.FigureCacheTTL, len(cfg.FigurePaths))
	}

	return &server{
		cfg:         cfg,
		pipeline:    &observedPipeline{Analyzer: analyzer, metrics: metrics, logger: logger},
		metrics:     metrics,
		logger:      logger,
		security:    sm,
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		figures:     figures,
		started:     time.Now(),
	}
}

func (s *server) corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(s.cfg.Security.AllowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.Security.AllowedOrigins
	}
	handler := cors.New(corsConfig)

	// Registered on the engine so preflight requests reach it; only /api
	// routes get CORS headers.
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			handler(c)
		}
	}
}

func (s *server) routes() (*gin.Engine, error) {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger))
	r.Use(s.compression.Handler())
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(security.SecurityHeadersMiddleware(s.cfg.EnableHSTS))
	r.Use(s.corsMiddleware())
	r.Use(s.security.ValidateContentType)
	r.Use(s.security.LimitBody)

	page, err := frontend.NewHandler(s.pipeline, frontend.Options{
		FigurePaths: s.cfg.FigurePaths,
		FigureCache: s.figures,
		MaxDisplay:  s.cfg.Explain.MaxDisplay,
		Logger:      s.logger.Logger,
	})
	if err != nil {
		return nil, err
	}
	pages := r.Group("", security.CSPMiddleware(security.CSPConfig{ReportURI: s.cfg.CSPReportURI}))
	page.Register(pages, s.security.RateLimitByIP)

	api := r.Group("/api/v1")
	api.GET("/schema", s.handleSchema)
	api.POST("/predict", s.security.RateLimitByIP, s.handlePredict)
	api.POST("/encode", s.handleEncode)

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if s.cfg.EnableProfiling {
		s.logger.SystemLogger("profiling_enabled", "pprof endpoints mounted under /debug/pprof")
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	return r, nil
}

// bindValues decodes a PredictRequest into typed values
func (s *server) bindValues(c *gin.Context) (schema.Values, error) {
	var req types.PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, apperrors.NewValidationError("", "request body must be a JSON object with a \"values\" map", err)
	}

	values := schema.Coerce(req.Values)
	if req.Defaults {
		for name, v := range s.pipeline.Catalogue().Defaults() {
			if _, ok := values[name]; !ok {
				values[name] = v
			}
		}
	}
	return values, nil
}

// handleSchema godoc
// @Summary Input schema
// @Tags predict
// @Produce json
// @Success 200 {object} types.SchemaResponse
// @Router /api/v1/schema [get]
func (s *server) handleSchema(c *gin.Context) {
	catalogue := s.pipeline.Catalogue()
	c.JSON(http.StatusOK, types.SchemaResponse{
		Fields:       catalogue.Fields(),
		FeatureNames: catalogue.FeatureNames(),
		Defaults:     catalogue.Defaults(),
		Model:        s.pipeline.ModelName(),
		ModelKind:    s.pipeline.ModelKind(),
	})
}

// handlePredict godoc
// @Summary Predict and explain
// @Tags predict
// @Accept json
// @Produce json
// @Param request body types.PredictRequest true "Field values"
// @Param chart query bool false "Include the waterfall chart"
// @Success 200 {object} types.PredictResponse
// @Failure 400 {object} errors.Response
// @Failure 429 {object} errors.Response
// @Failure 500 {object} errors.Response
// @Router /api/v1/predict [post]
func (s *server) handlePredict(c *gin.Context) {
	values, err := s.bindValues(c)
	if err != nil {
		s.metrics.IncrementValidationFailure()
		_ = c.Error(err)
		return
	}

	result, err := s.pipeline.Analyze(values)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := types.NewPredictResponse(s.pipeline.ModelName(), result)
	if withChart, _ := strconv.ParseBool(c.Query("chart")); withChart && result.Attribution != nil {
		png, err := chart.Waterfall(result.Attribution, chart.Options{MaxDisplay: s.cfg.Explain.MaxDisplay})
		if err != nil {
			s.logger.Error("failed to render waterfall", "error", err)
		} else {
			resp.Chart = chart.DataURI(png)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleEncode godoc
// @Summary Encode values
// @Tags predict
// @Accept json
// @Produce json
// @Param request body types.PredictRequest true "Field values"
// @Success 200 {object} types.EncodeResponse
// @Failure 400 {object} errors.Response
// @Router /api/v1/encode [post]
func (s *server) handleEncode(c *gin.Context) {
	values, err := s.bindValues(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	fv, err := s.pipeline.Encode(values)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, types.EncodeResponse{Features: fv})
}

// handleHealth godoc
// @Summary Health check
// @Tags ops
// @Produce json
// @Success 200 {object} types.HealthResponse
// @Router /health [get]
func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthResponse{
		Status:    "ok",
		Model:     s.pipeline.ModelName(),
		ModelKind: s.pipeline.ModelKind(),
		Features:  s.pipeline.Catalogue().Len(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *server) handleMetrics(c *gin.Context) {
	stats := s.metrics.GetStats()
	stats["compression"] = s.compression.GetStats()
	stats["rate_limited_clients"] = s.security.TrackedClients()
	if s.figures != nil {
		stats["figure_cache"] = s.figures.Stats()
	}
	c.JSON(http.StatusOK, stats)
}

// loadAnalyzer builds the pipeline from the configured catalogue and model
func loadAnalyzer(cfg *config.Config, logger *monitoring.Logger) (*analysis.Analyzer, error) {
	catalogue := schema.Default()
	if cfg.SchemaPath != "" {
		var err error
		if catalogue, err = schema.Load(cfg.SchemaPath); err != nil {
			return nil, apperrors.NewConfigurationError("failed to load schema "+cfg.SchemaPath, err)
		}
	}

	artifact, err := model.LoadArtifact(cfg.ModelPath)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to load model "+cfg.ModelPath, err)
	}

	analyzer, err := analysis.NewAnalyzer(catalogue, artifact, explainOptions(cfg), logger.Logger)
	if err != nil {
		return nil, apperrors.NewConfigurationError("model does not match schema", err)
	}
	return analyzer, nil
}
