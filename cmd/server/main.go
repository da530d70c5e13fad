package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sitewatch/internal/api"
	"sitewatch/internal/auth"
	"sitewatch/internal/checks"
	"sitewatch/internal/config"
	"sitewatch/internal/db"
	"sitewatch/internal/events"
	"sitewatch/internal/logging"
	"sitewatch/internal/notify"
	"sitewatch/internal/scheduler"
	"sitewatch/internal/stream"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogDir)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	defer database.Close()
	logger.Info("database ready", zap.String("path", cfg.DBPath))

	created, seededOrgID, generatedPass, err := auth.SeedAdmin(database, cfg)
	if err != nil {
		logger.Fatal("admin seed failed", zap.Error(err))
	}
	if created {
		logger.Info("created admin user",
			zap.String("username", cfg.AdminUser),
			zap.Int64("org_id", seededOrgID))
		if generatedPass != "" {
			logger.Info("generated admin password", zap.String("password", generatedPass))
		}
	}
	fallbackOrgID := seededOrgID
	if fallbackOrgID == 0 {
		fallbackOrgID = 1
	}

	bus := events.NewBus(100, logger)
	checkRegistry := checks.NewRegistry()
	channelRegistry := notify.NewRegistry()
	engine := notify.NewEngine(database, channelRegistry, logger)
	executor := checks.NewExecutor(database, checkRegistry, bus, logger, engine, cfg.MaxConcurrent)

	sched := scheduler.New(database, executor, logger)
	if err := sched.Resync(); err != nil {
		logger.Fatal("schedule resync failed", zap.Error(err))
	}
	defer sched.Stop()

	hub := stream.NewHub(database, bus, logger)
	defer hub.CloseAll()

	// Expired sessions pile up otherwise.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			auth.CleanupExpiredSessions(database)
		}
	}()

	// Old check results get pruned once a day.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().UTC().AddDate(0, 0, -cfg.RetentionDays)
			if n, err := checks.PruneResults(database, cutoff); err != nil {
				logger.Error("result prune failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("pruned old check results", zap.Int64("deleted", n))
			}
		}
	}()

	server := &api.Server{
		DB:            database,
		Logger:        logger,
		Config:        cfg,
		Checks:        checkRegistry,
		Channels:      channelRegistry,
		Scheduler:     sched,
		Stream:        hub,
		FallbackOrgID: fallbackOrgID,
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections stay open
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
