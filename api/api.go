package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// This file is the entry point for the API package: the APIHandler
// struct and its dependencies. Handlers, middleware and validation live
// in their own files:
// - api.go: handler struct, service interfaces, routing (this file)
// - handler.go: HTTP request handlers
// - middleware.go: middleware functions
// - validator.go: request validation

// Constants
const (
	DefaultTimeout      = 30 * time.Second
	DefaultInterval     = "1m"
	ServiceVersion      = "1.0.0"
	ServiceName         = "premium-market-data"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// KlineService aggregates candle data across exchanges.
type KlineService interface {
	AggregateKlines(ctx context.Context, exchanges []string, symbol, interval string, to int64) (*model.KlineResponse, error)
	Tickers(ctx context.Context, exchanges []string, symbol string) (map[string]model.TickerSnapshot, error)
}

// PremiumStreamer relays live premium ticks to one SSE connection,
// blocking until the client disconnects.
type PremiumStreamer interface {
	Stream(ctx context.Context, w http.ResponseWriter, channel string)
}

// BrokerHealth reports broker reachability for the health endpoint.
type BrokerHealth interface {
	Ping(ctx context.Context) error
}

// APIHandler handles HTTP requests using the Gin framework.
type APIHandler struct {
	klines    KlineService
	streamer  PremiumStreamer
	broker    BrokerHealth
	validator *Validator
	logger    *slog.Logger
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(klines KlineService, streamer PremiumStreamer, broker BrokerHealth, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		klines:    klines,
		streamer:  streamer,
		broker:    broker,
		validator: GetValidator(),
		logger:    logger,
	}
}

// StartServer starts the HTTP server.
func (h *APIHandler) StartServer(port int) error {
	router := h.SetupRoutes()
	return router.Run(":" + strconv.Itoa(port))
}

// SetupRoutes configures all API routes.
func (h *APIHandler) SetupRoutes() *gin.Engine {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(requestIDMiddleware())
	router.Use(ginLoggerMiddleware())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// API routes
	router.GET("/api/kline", h.GetKlines)
	router.GET("/api/ticker", h.GetTickers)
	router.GET("/api/premium/stream", h.StreamPremium)
	router.GET("/health", h.HealthCheck)

	return router
}
