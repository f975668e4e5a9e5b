// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dispatch-board/backend/internal/config"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Positions      PositionSource
	Calls          CallLister
	Classifier     Classifier
	StreamInterval time.Duration
	Version        string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Positions PositionsHandler
	Records   RecordsHandler
	Classify  ClassifyHandler
	Stream    StreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	interval := deps.StreamInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Positions),
		Positions: NewPositionsHandler(deps.Positions),
		Records:   NewRecordsHandler(deps.Calls),
		Classify:  NewClassifyHandler(deps.Classifier),
		Stream:    NewStreamHub(deps.Positions, interval),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)
	apiGroup.GET("/positions", handlers.Positions.HandleGetPositions)
	apiGroup.GET("/dispatch-records", handlers.Records.HandleGetDispatchRecords)
	apiGroup.POST("/classify-summary", handlers.Classify.HandleClassifySummary)
	apiGroup.GET("/ws/positions", handlers.Stream.HandleStream)
}

func isStreamRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg config.ServerConfig) {
	e.HTTPErrorHandler = NewErrorHandler(cfg.ExposeErrorDetails)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return !cfg.EnableRequestLogging || c.Request().URL.Path == "/api/health"
		},
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := log.WithFields(log.Fields{
				"component":  "http",
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency,
				"request_id": v.RequestID,
				"remote_ip":  v.RemoteIP,
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 * 1024,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.WithField("component", "http").WithError(err).Errorf("panic recovered\n%s", stack)
			return err
		},
	}))

	if cfg.ReadTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: time.Duration(cfg.ReadTimeout) * time.Second,
			Skipper: isStreamRequest,
		}))
	}

	if cfg.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level:   cfg.CompressionLevel,
			Skipper: isStreamRequest,
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.EnableCORS {
		origins := strings.Split(cfg.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  origins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			ExposeHeaders: []string{HeaderSnapshotID, HeaderCapturedAt, HeaderSnapshotStale, "Retry-After"},
		}))
	}
}
