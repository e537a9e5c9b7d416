package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Juhan1212/karbit-sub002/api"
	"github.com/Juhan1212/karbit-sub002/internal/broker"
	"github.com/Juhan1212/karbit-sub002/internal/config"
	"github.com/Juhan1212/karbit-sub002/internal/exchange"
	"github.com/Juhan1212/karbit-sub002/internal/logging"
	"github.com/Juhan1212/karbit-sub002/internal/mock"
	"github.com/Juhan1212/karbit-sub002/internal/service"
	"github.com/Juhan1212/karbit-sub002/internal/stream"
)

func main() {
	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	logger := logging.New()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived shutdown signal, stopping services...")
		cancel() // Cancel the context to stop all services
	}()

	// 1. Connect the broker handle (one per process). A failed connect
	// degrades the stream to heartbeats instead of aborting startup.
	var streamBroker stream.Broker
	var brokerHealth api.BrokerHealth

	brokerClient, err := broker.New(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Error("broker connect failed, premium stream will be degraded", "error", err)
	} else {
		defer brokerClient.Close()
		streamBroker = brokerClient
		brokerHealth = brokerClient
	}

	// 2. Create the kline aggregation service over the adapter factory
	klineService := service.NewKlineService(exchange.NewAdapter, logger)

	// Optional synthetic tick generator for local development
	if cfg.Stream.MockPublisher && brokerClient != nil {
		mock.NewPremiumPublisher(brokerClient, logger).Start(ctx)
	}

	// 3. Create the live premium stream service
	streamService := stream.NewService(streamBroker, cfg.Stream.DefaultChannel, cfg.Stream.Heartbeat, logger)

	// Create API handler
	apiHandler := api.NewAPIHandler(klineService, streamService, brokerHealth, logger)

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: apiHandler.SetupRoutes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}()

	fmt.Printf("Premium market data service starting on port %d\n", cfg.Server.Port)
	fmt.Printf("Endpoints:\n")
	fmt.Printf("  GET /api/kline?exchanges=upbit,binance&symbol=BTC&interval=1m\n")
	fmt.Printf("  GET /api/ticker?exchanges=upbit,binance&symbol=BTC\n")
	fmt.Printf("  GET /api/premium/stream\n")
	fmt.Printf("  GET /health\n")
	fmt.Printf("Press Ctrl+C to gracefully shutdown\n")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
