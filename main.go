package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bidlane/auction-server/configs"
	"github.com/bidlane/auction-server/internal/database"
	"github.com/bidlane/auction-server/internal/engine"
	"github.com/bidlane/auction-server/internal/handlers/rest"
	ws "github.com/bidlane/auction-server/internal/handlers/websocket"
	"github.com/bidlane/auction-server/internal/hub"
	"github.com/charmbracelet/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}

	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	port := cfg.Server.Port
	if port == "" {
		port = "8080" // Default port if not specified
	}

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "debug"
	}
	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level: ", err)
	}
	log.SetLevel(logLevel)

	runMigrations(cfg)

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal("Error connecting to database: ", err)
	}

	// The notification hub is process-wide state: constructed once here and
	// injected everywhere events originate.
	notifications := hub.New()

	lockWait := time.Duration(cfg.Auction.LockWaitMs) * time.Millisecond
	auctionEngine := engine.New(db, notifications, lockWait)

	wsHandler := ws.NewAuctionHandler(notifications, cfg)
	handler := rest.NewHandler(db, auctionEngine, cfg)
	router := rest.NewRouter(handler, wsHandler, cfg)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Infof("Server started on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed: ", err)
	}
	notifications.Close()
	if err := db.Close(); err != nil {
		log.Error("Error closing database: ", err)
	}
}

func runMigrations(cfg *configs.Config) {
	dbConfig := cfg.Database
	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.Name,
		dbConfig.SSLMode,
	)

	migration, err := migrate.New(dbConfig.MigrationsURL, dbURL)
	if err != nil {
		log.Fatal("Cannot create migrate instance: ", err)
	}
	if err := migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("Failed to run migrations: ", err)
	}
	log.Info("Database migrations applied")
}
