package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brasserie/internal/api"
	"brasserie/internal/config"
	"brasserie/internal/database"
	"brasserie/internal/reconciler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	port       = flag.Int("port", 8080, "API server port")
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration, falling back to defaults when no file is present
	cfg, err := config.Load(*configFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		log.Printf("No config file at %s, using defaults", *configFile)
		cfg = config.Defaults()
	}

	// Initialize database
	if err := database.InitDB(cfg.Database.Dialect, cfg.Database.Source); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	if err := database.Migrate(database.GetDB()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Start availability/ledger reconciler
	if cfg.Reconciler.Enabled {
		rec := reconciler.New(database.GetDB(), cfg.Reconciler.Interval.Std())
		go rec.Run(ctx)
	}

	// Start metrics server
	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics.Port)
	}

	// Start API server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: api.NewServer(database.GetDB()).Router,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down servers...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}

		cancel()
	}()

	log.Printf("Starting API server on port %d", *port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("API server error: %v", err)
	}
}

func startMetricsServer(port int) {
	metricsRouter := gin.Default()
	metricsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}

	log.Printf("Starting metrics server on port %d", port)
	if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("Metrics server error: %v", err)
	}
}
