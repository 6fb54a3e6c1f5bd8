package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/loja-mae/fieldsync/internal/api"
	"github.com/loja-mae/fieldsync/internal/config"
	"github.com/loja-mae/fieldsync/internal/netpolicy"
	"github.com/loja-mae/fieldsync/internal/notify"
	"github.com/loja-mae/fieldsync/internal/queue"
	"github.com/loja-mae/fieldsync/internal/remote"
	"github.com/loja-mae/fieldsync/internal/store"
	syncengine "github.com/loja-mae/fieldsync/internal/sync"

	_ "github.com/loja-mae/fieldsync/docs"
)

// @title FieldSync API
// @version 1.0
// @description Offline mutation queue and synchronization engine for field sales agents
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8090
// @BasePath /api/v1
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	// Load configuration with defaults
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate minimum required config
	if cfg.RemoteAPIURL == "" {
		logger.Fatal("Missing required configuration (REMOTE_API_URL must be set)")
	}

	// Initialize local store
	localStore, err := store.NewSQLiteStore(cfg.DataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize local store: %v", err)
	}
	defer localStore.Close()

	// Run migrations with retry logic
	if err := retry(3, 5*time.Second, func() error {
		return localStore.Migrate()
	}); err != nil {
		logger.Fatalf("Failed to run migrations after retries: %v", err)
	}

	// Initialize services
	bus := notify.NewBus(logger)
	mutationQueue := queue.New(localStore, bus, logger)

	remoteCfg := config.DefaultRemoteConfig()
	remoteCfg.BaseURL = cfg.RemoteAPIURL
	remoteCfg.Token = cfg.RemoteToken
	remoteClient := remote.NewClient(remoteCfg, logger)
	uploader := remote.NewHTTPUploader(remoteClient, logger)

	policy := netpolicy.NewEvaluator(netpolicy.InterfaceProbe{}, localStore, bus, logger)
	manager := syncengine.NewManager(mutationQueue, localStore, policy, remoteClient, uploader, bus, logger)
	scheduler := syncengine.NewScheduler(manager, logger)

	apiHandler := api.NewHandler(mutationQueue, manager, localStore, logger)

	// Setup router with middleware
	router := api.SetupRouter(apiHandler)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(router)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Start background sync
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.StartBackgroundSync(ctx, cfg.SyncInterval)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	scheduler.StopBackgroundSync()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Info("Server exited properly")
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
