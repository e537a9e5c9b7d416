package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetKlines handles GET /api/kline requests: on-demand candle
// aggregation across the requested exchanges plus premium synthesis.
func (h *APIHandler) GetKlines(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	exchanges := c.Query("exchanges")
	symbol := c.Query("symbol")
	interval := c.DefaultQuery("interval", DefaultInterval)
	to := c.DefaultQuery("to", "0")

	cleanExchanges, cleanSymbol, cleanInterval, validTo, err := h.validator.ValidateKlineRequest(exchanges, symbol, interval, to)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	resp, err := h.klines.AggregateKlines(ctx, cleanExchanges, cleanSymbol, cleanInterval, validTo)
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetTickers handles GET /api/ticker requests: current price per
// requested exchange. Exchanges that fail are omitted from the map.
func (h *APIHandler) GetTickers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	exchanges := c.Query("exchanges")
	symbol := c.Query("symbol")

	cleanExchanges, cleanSymbol, err := h.validator.ValidateTickerRequest(exchanges, symbol)
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	tickers, err := h.klines.Tickers(ctx, cleanExchanges, cleanSymbol)
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, tickers)
}

// StreamPremium handles GET /api/premium/stream requests: a server-sent
// event stream of live premium ticks. The handler blocks for the
// lifetime of the connection; the stream ends only on client
// disconnect.
func (h *APIHandler) StreamPremium(c *gin.Context) {
	channel, err := h.validator.ValidateChannel(c.Query("channel"))
	if err != nil {
		h.handleValidationError(c, err)
		return
	}

	h.streamer.Stream(c.Request.Context(), c.Writer, channel)
}

// HealthCheck handles GET /health requests.
func (h *APIHandler) HealthCheck(c *gin.Context) {
	brokerStatus := "down"
	if h.broker != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.broker.Ping(ctx); err == nil {
			brokerStatus = "up"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"broker":    brokerStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   ServiceVersion,
	})
}

// handleError logs the error and sends appropriate HTTP response
func (h *APIHandler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID, exists := c.Get(RequestIDContextKey)
	requestIDStr := "unknown"
	if exists {
		if id, ok := requestID.(string); ok {
			requestIDStr = id
		}
	}

	h.logger.Error("API error",
		slog.String("request_id", requestIDStr),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", statusCode),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestIDStr,
	})
}

// handleValidationError handles validation errors specifically
func (h *APIHandler) handleValidationError(c *gin.Context, err error) {
	h.handleError(c, err, http.StatusBadRequest, err.Error())
}
