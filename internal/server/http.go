package server

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelgate/internal/observability"
)

// defaultBodySizeLimit caps request bodies at 10MB.
const defaultBodySizeLimit = "10M"

// Server wraps the Echo server.
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options.
type Config struct {
	MetricsEnabled  bool   // Whether to expose the Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for the metrics endpoint (default: /metrics)
}

// New creates the HTTP server and registers all routes.
func New(deps Deps, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(deps)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(defaultBodySizeLimit))

	if cfg != nil && cfg.MetricsEnabled {
		e.Use(observability.Middleware())
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	e.GET("/health", handler.Health)

	v1 := e.Group("/v1")

	// Proxy surface
	v1.POST("/chat/completions", handler.ChatCompletion)
	v1.POST("/completions", handler.Completion)
	v1.POST("/embeddings", handler.Embeddings)
	v1.POST("/moderations", handler.Moderations)
	v1.POST("/images/generations", handler.ForwardOpaque("/images/generations"))
	v1.POST("/images/edits", handler.ForwardOpaque("/images/edits"))
	v1.POST("/images/variations", handler.ForwardOpaque("/images/variations"))
	v1.POST("/audio/speech", handler.ForwardOpaque("/audio/speech"))
	v1.POST("/audio/transcriptions", handler.ForwardOpaque("/audio/transcriptions"))
	v1.POST("/audio/translations", handler.ForwardOpaque("/audio/translations"))

	// Model catalog and discovery registration
	v1.GET("/models", handler.ListModels)
	v1.GET("/models/:id", handler.GetModel)
	v1.DELETE("/models/:id", handler.DeleteModel)
	v1.POST("/models/register", handler.RegisterModel)

	// Assistants API
	v1.POST("/assistants", handler.CreateAssistant)
	v1.GET("/assistants", handler.ListAssistants)
	v1.GET("/assistants/:id", handler.GetAssistant)
	v1.POST("/assistants/:id", handler.ModifyAssistant)
	v1.DELETE("/assistants/:id", handler.DeleteAssistant)

	v1.POST("/threads", handler.CreateThread)
	v1.GET("/threads", handler.ListThreads)
	v1.GET("/threads/:id", handler.GetThread)
	v1.POST("/threads/:id", handler.ModifyThread)
	v1.DELETE("/threads/:id", handler.DeleteThread)

	v1.POST("/threads/:thread_id/messages", handler.CreateMessage)
	v1.GET("/threads/:thread_id/messages", handler.ListMessages)
	v1.GET("/threads/:thread_id/messages/:id", handler.GetMessage)
	v1.POST("/threads/:thread_id/messages/:id", handler.ModifyMessage)

	v1.POST("/threads/runs", handler.CreateThreadAndRun)
	v1.POST("/threads/:thread_id/runs", handler.CreateRun)
	v1.GET("/threads/:thread_id/runs", handler.ListRuns)
	v1.GET("/threads/:thread_id/runs/:id", handler.GetRun)
	v1.POST("/threads/:thread_id/runs/:id/cancel", handler.CancelRun)

	return &Server{echo: e, handler: handler}
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler so the server works with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
