// Package v1 provides the HTTP handlers for the chatbot.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/backup"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/config"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/metrics"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/service"
)

// Version is reported by the health endpoint.
var Version = "2.0.0"

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	backuper *backup.Backuper
	metrics  *metrics.Collector
	cfg      *config.Config
	logger   *slog.Logger
}

// NewHandler creates a new handler. backuper and collector may be nil.
func NewHandler(svc *service.Service, backuper *backup.Backuper, collector *metrics.Collector, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  svc,
		backuper: backuper,
		metrics:  collector,
		cfg:      cfg,
		logger:   logger.With("component", "http"),
	}
}

// RegisterRoutes registers the chat and operator routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Chat API, scoped to the caller's session
	e.POST("/chat", h.Chat)
	e.POST("/clear", h.Clear)
	e.GET("/history", h.History)
	e.GET("/stats", h.Stats)

	// Operator API
	e.GET("/sessions", h.ListSessions)
	e.DELETE("/sessions/:session_id", h.WipeSession)
	e.POST("/backup", h.Backup)

	e.GET("/health", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

// NewServer creates an echo instance with panic recovery and request logging.
func NewServer(logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				logger.Error("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
	return e
}
