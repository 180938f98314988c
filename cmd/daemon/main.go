// Path: cmd/daemon/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"esp-hub/internal/buffer"
	"esp-hub/internal/config"
	"esp-hub/internal/delivery/rest"
	"esp-hub/internal/delivery/ws"
	"esp-hub/internal/hub"
	"esp-hub/internal/service"
	"esp-hub/internal/storage"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Setup Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Database Connection
	log.Println("Connecting to MongoDB...")
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Database.URI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoClient.Disconnect(ctx)
	db := mongoClient.Database(cfg.Database.Name)

	// 4. Initialize Components
	log.Println("Initializing components...")
	registry := hub.NewRegistry()
	router := hub.NewRouter(registry)
	deviceStore := storage.NewMongoDeviceStorage(db, cfg.Database.DeviceCollection)
	accessStore := storage.NewMongoAccessStorage(db, cfg.Database.AccessCollection, cfg.Database.SessionCollection)
	telemetryBuffer := buffer.New(cfg.Buffer, deviceStore)

	// 5. Initialize The Core Service
	coreService := service.NewService(registry, router, telemetryBuffer, deviceStore, accessStore)

	// 6. Start the core service (buffer recovery + flush loop) in the background
	go func() {
		if err := coreService.Start(ctx); err != nil {
			log.Printf("Core service error: %v", err)
			cancel() // Trigger shutdown on critical service error
		}
	}()

	// 7. Initialize and Start The API Server (REST + WebSocket endpoints)
	realtime := ws.NewHandler(coreService, registry, cfg.Realtime)
	apiServer := rest.NewServer(cfg.Server.Port, coreService, realtime)
	go func() {
		log.Printf("API server starting on port %s", cfg.Server.Port)
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	// 8. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received. Shutting down gracefully...")

	// Cancel the main context to signal background processes to stop
	cancel()

	// Give background processes time to stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop the API server first so no new telemetry arrives mid-drain
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Printf("Error during API server shutdown: %v", err)
	}

	// Drain-and-flush the telemetry buffer
	coreService.Stop(shutdownCtx)

	log.Println("Server shut down successfully.")
}
