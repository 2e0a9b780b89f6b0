package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"pianosale/api/booking"
	"pianosale/api/config"
	"pianosale/api/database"
	"pianosale/api/handlers"
	"pianosale/api/logger"
	"pianosale/api/store"
	"pianosale/api/tracking"
)

func main() {
	envErr := godotenv.Load()

	cfg, cfgErr := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfgErr != nil {
		log.Fatal("invalid configuration", "error", cfgErr)
	}

	if envErr != nil {
		log.Info("no .env file loaded", "error", envErr)
	}
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET_KEY is not set; admin login is disabled")
	}

	// --- PostgreSQL (admins, booking ledger) ---
	dbClient, err := database.NewPostgresDB(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize PostgreSQL", "error", err)
	}
	defer dbClient.Close()

	// --- ClickHouse (analytics events) ---
	chClient, err := database.NewClickHouseDB(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize ClickHouse", "error", err)
	}
	defer chClient.Close()

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbClient.EnsureSchema(schemaCtx); err != nil {
		log.Fatal("failed to ensure PostgreSQL schema", "error", err)
	}
	if err := chClient.EnsureSchema(schemaCtx); err != nil {
		log.Fatal("failed to ensure ClickHouse schema", "error", err)
	}

	adminStore := store.NewAdminStore(dbClient.DB)
	bookingStore := store.NewBookingStore(dbClient.DB)
	analyticsStore := store.NewAnalyticsStore(chClient.Conn, log)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		admin, err := handlers.BootstrapAdmin(schemaCtx, adminStore, cfg.AdminEmail, cfg.AdminPassword)
		switch {
		case err != nil:
			log.Error("failed to bootstrap admin", "email", cfg.AdminEmail, "error", err)
		case admin != nil:
			log.Info("bootstrapped admin", "admin_id", admin.ID, "email", admin.Email)
		}
	}
	schemaCancel()

	bgCtx, bgCancel := context.WithCancel(context.Background())

	writer := store.NewEventWriter(analyticsStore, log, store.EventWriterOptions{})
	go writer.Run(bgCtx)

	registry := tracking.NewRegistry(writer, log, tracking.RegistryOptions{
		TTL:         cfg.TrackingSessionTTL,
		MaxSessions: cfg.TrackingMaxSessions,
	})
	go registry.RunSweeper(bgCtx, cfg.TrackingSweepInterval)

	scheduler := booking.NewCalComClient(booking.CalComConfig{
		BaseURL:    cfg.CalComBaseURL,
		APIKey:     cfg.CalComAPIKey,
		APIVersion: cfg.CalComAPIVersion,
		Username:   cfg.CalComUsername,
		TimeZone:   cfg.CalComTimeZone,
		Timeout:    cfg.OutboundTimeout,
	}, nil)
	crm := booking.NewAirtableClient(booking.AirtableConfig{
		BaseURL: cfg.AirtableBaseURL,
		APIKey:  cfg.AirtableAPIKey,
		BaseID:  cfg.AirtableBaseID,
		Table:   cfg.AirtableTable,
		Timeout: cfg.OutboundTimeout,
	}, nil)
	pipeline := booking.NewPipeline(scheduler, crm, bookingStore, log)

	secret := []byte(cfg.JWTSecret)
	r := handlers.NewRouter(handlers.RouterDeps{
		Sessions:  handlers.NewSessionHandlers(registry, log),
		Analytics: handlers.NewAnalyticsHandlers(analyticsStore, writer, log),
		Bookings:  handlers.NewBookingHandlers(pipeline, log),
		Admin:     handlers.NewAdminHandlers(adminStore, bookingStore, secret, cfg.GinMode == gin.ReleaseMode, log),
		Origins:   cfg.Origins(),
		JWTSecret: secret,
		APIKey:    cfg.AdminAPIKey,
		Log:       log,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("API server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	registry.Shutdown()
	bgCancel()
	writer.Wait()

	log.Info("server exiting")
}
