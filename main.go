package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"volumewatch/config"
	"volumewatch/internal/api"
	"volumewatch/internal/dashboard"
	"volumewatch/internal/metrics"
	"volumewatch/internal/notify"
	"volumewatch/internal/state"
	"volumewatch/internal/stream"
	"volumewatch/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithEnv("BACKEND_BASE_URL", "LOG_LEVEL").Debug("environment overrides")

	log.WithFields(logger.Fields{
		"service": cfg.Volumewatch.Name,
		"version": cfg.Volumewatch.Version,
		"backend": cfg.Backend.BaseURL,
	}).Info("starting volumewatch")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := state.NewStore(cfg.View.TickHistory, cfg.View.AlertHistory)
	client := api.NewClient(cfg.Backend)
	refresher := api.NewRefresher(client, store, cfg.Backend.StatsRefreshInterval)
	notifier := notify.NewLogNotifier(cfg.Notifications.Enabled, store)
	streamClient := stream.NewClient(cfg, store, refresher, notifier)

	if err := refresher.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start refresher")
		os.Exit(1)
	}
	if err := streamClient.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start push channel client")
		os.Exit(1)
	}

	dashboardServer, err := dashboard.NewServer(cfg.Dashboard, cfg.Volumewatch.Name, store, client, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}

	dashboardErr := make(chan error, 1)
	if dashboardServer != nil {
		go func() {
			dashboardErr <- dashboardServer.Run(ctx)
		}()
		log.WithFields(logger.Fields{"address": dashboardServer.Address()}).Info("dashboard started")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-dashboardErr:
		if err != nil {
			log.WithError(err).Error("dashboard server failed")
		}
	}

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping push channel client")
	streamClient.Stop()

	log.Info("stopping refresher")
	refresher.Stop()

	if dashboardServer != nil {
		select {
		case <-dashboardErr:
		case <-time.After(10 * time.Second):
			log.Warn("dashboard shutdown timeout exceeded")
		}
	}

	log.Info("volumewatch stopped")
}
