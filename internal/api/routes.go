// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/plot-visualizer/backend/internal/config"
	"github.com/plot-visualizer/backend/internal/instrument"
	"github.com/plot-visualizer/backend/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Sessions SessionManager
	Cache    ParsedDataCache
	Uploads  UploadJobs
	History  HistoryProvider
	Layouts  LayoutStore
	Renderer ChartRenderer
	Counter  *instrument.RenderCounter
	Config   *config.AppConfig
	Formats  []string
	Logger   *zap.Logger
	Version  string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Upload    UploadHandler
	Recording RecordingHandler
	Plot      PlotHandler
	Layout    LayoutHandler
	Debug     DebugHandler
	Live      *LiveHandler

	metrics     http.Handler
	allowDelete bool
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	counter := deps.Counter
	if counter == nil {
		counter = instrument.NewRenderCounter(cfg.Plot.MetricsNamespace)
	}

	return &Handlers{
		Health: NewHealthHandler(deps.Version, deps.Formats),
		Upload: NewUploadHandler(deps.Store, deps.Sessions, deps.Cache, deps.Uploads, UploadOptions{
			AllowedExtensions: cfg.AllowedExtensions(),
			RecentLimit:       cfg.Processing.RecentFilesLimit,
		}, logger),
		Recording: NewRecordingHandler(deps.Store, deps.Sessions, logger),
		Plot:      NewPlotHandler(deps.Sessions, deps.History, deps.Layouts, deps.Renderer, counter),
		Layout:    NewLayoutHandler(deps.Layouts),
		Debug:     NewDebugHandler(counter),
		Live: NewLiveHandler(deps.Sessions, deps.History, deps.Layouts, counter, LiveOptions{
			PollInterval:   cfg.LivePollInterval(),
			MaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		}, logger),
		metrics:     metricsHandler(counter.Registry()),
		allowDelete: cfg.Security.AllowFileDeletion,
	}
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// File routes
	fileGroup := apiGroup.Group("/files")
	fileGroup.POST("/upload", handlers.Upload.HandleUploadFile)
	fileGroup.POST("/upload/chunk", handlers.Upload.HandleUploadChunk)
	fileGroup.POST("/upload/complete", handlers.Upload.HandleCompleteUpload)
	fileGroup.GET("/upload/:jobId/status", handlers.Upload.HandleUploadJobStatus)
	fileGroup.GET("/recent", handlers.Upload.HandleGetRecentFiles)
	fileGroup.GET("/:id", handlers.Upload.HandleGetFile)
	fileGroup.PUT("/:id", handlers.Upload.HandleRenameFile)
	if handlers.allowDelete {
		fileGroup.DELETE("/:id", handlers.Upload.HandleDeleteFile)
	}

	// Recording session routes
	recGroup := apiGroup.Group("/recordings")
	recGroup.POST("", handlers.Recording.HandleStartRecording)
	recGroup.GET("/:sessionId/status", handlers.Recording.HandleRecordingStatus)
	recGroup.GET("/:sessionId/progress", handlers.Recording.HandleRecordingProgressStream)
	recGroup.POST("/:sessionId/keepalive", handlers.Recording.HandleSessionKeepAlive)
	recGroup.GET("/:sessionId/topics", handlers.Recording.HandleGetTopics)
	recGroup.GET("/:sessionId/messages", handlers.Recording.HandleGetMessages)

	// Plot routes
	plotGroup := apiGroup.Group("/plot")
	plotGroup.POST("/:sessionId", handlers.Plot.HandlePlotData)
	plotGroup.POST("/:sessionId/png", handlers.Plot.HandlePlotPNG)
	plotGroup.GET("/:sessionId/live", handlers.Live.HandleLive)

	// Layout routes
	layoutGroup := apiGroup.Group("/layouts")
	layoutGroup.GET("", handlers.Layout.HandleListLayouts)
	layoutGroup.POST("", handlers.Layout.HandleCreateLayout)
	layoutGroup.GET("/:id", handlers.Layout.HandleGetLayout)
	layoutGroup.PUT("/:id", handlers.Layout.HandleUpdateLayout)
	layoutGroup.DELETE("/:id", handlers.Layout.HandleDeleteLayout)
	layoutGroup.PUT("/:id/y-range", handlers.Layout.HandleSaveCurrentYs)

	// Instrumentation
	apiGroup.GET("/debug/render-counts", handlers.Debug.HandleRenderCounts)
	e.GET("/metrics", echo.WrapHandler(handlers.metrics))
}

// RequestValidator adapts go-playground/validator to echo's Validator hook.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator creates the validator used by c.Validate.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New()}
}

// Validate implements echo.Validator.
func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return validationError(err)
	}
	return nil
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig, logger *zap.Logger) {
	e.HTTPErrorHandler = NewErrorHandler(logger, cfg.Advanced.LogLevel == "debug" || cfg.Advanced.LogLevel == "dev")
	e.Validator = NewRequestValidator()

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/progress") ||
				strings.HasSuffix(path, "/keepalive") ||
				path == "/api/health" ||
				path == "/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return cfg.Server.ReadTimeout <= 0 ||
				strings.HasSuffix(path, "/live") ||
				strings.HasSuffix(path, "/progress") ||
				strings.Contains(path, "/upload")
		},
		ErrorMessage: "Request timeout - query took too long",
	}))

	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}
