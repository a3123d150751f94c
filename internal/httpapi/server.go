// Package httpapi exposes the acquisition and analytics services as a JSON
// API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/monorkin/greenhouse-monitor/esp32/api"
	"github.com/monorkin/greenhouse-monitor/internal/acquisition"
	"github.com/monorkin/greenhouse-monitor/internal/analytics"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

type Acquisition interface {
	GetSnapshot(ctx context.Context) (*acquisition.Snapshot, error)
	SendControl(ctx context.Context, relay api.Relay, state api.RelayState) (string, error)
	Ingest(ctx context.Context, input storage.ReadingInput) (*acquisition.IngestResult, error)
	Status(ctx context.Context) (*acquisition.SystemStatus, error)
}

type Analytics interface {
	Report(ctx context.Context) (*analytics.Report, error)
	History(ctx context.Context, filter storage.HistoryFilter) (*analytics.HistoryPage, error)
}

type Config struct {
	Acquisition Acquisition
	Analytics   Analytics
	Logger      *slog.Logger
	// AllowedOrigins enables CORS for browser dashboards. Empty disables it.
	AllowedOrigins []string
}

type handlers struct {
	acquisition Acquisition
	analytics   Analytics
	logger      *slog.Logger
}

func NewRouter(config Config) *gin.Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &handlers{
		acquisition: config.Acquisition,
		analytics:   config.Analytics,
		logger:      logger,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	if len(config.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: config.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	routes := router.Group("/api")
	routes.GET("/sensors", h.getSensors)
	routes.POST("/control", h.postControl)
	// The device firmware submits readings with a plain GET.
	routes.GET("/readings", h.ingestReading)
	routes.POST("/readings", h.ingestReading)
	routes.GET("/history", h.getHistory)
	routes.GET("/analytics", h.getAnalytics)
	routes.GET("/status", h.getStatus)

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		logger.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}

// Serve runs the API on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("failed to serve HTTP API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP API: %w", err)
	}

	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
