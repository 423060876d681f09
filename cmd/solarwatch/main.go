package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"solarwatch/internal/config"
	"solarwatch/internal/database"
	"solarwatch/internal/metrics"
	"solarwatch/internal/monitoring"
	"solarwatch/internal/notifications"
	"solarwatch/internal/web"
)

const appVersion = "1.0.0"

func main() {
	configFile := flag.String("config", "config.yaml", "Configuration file path")
	once := flag.Bool("once", false, "Run a single fleet sweep and exit")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("solarwatch v%s\n", appVersion)
		os.Exit(0)
	}

	// secrets come from the environment; a local .env is optional
	if err := godotenv.Load(); err == nil {
		logrus.Debug("Loaded environment from .env")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	setupLogging(cfg.Logging)

	logrus.WithFields(logrus.Fields{
		"config_file": *configFile,
		"sites":       len(cfg.Sites),
		"interval":    cfg.Monitoring.Interval,
	}).Info("Starting solar fleet monitor")

	store, err := database.NewBoltStore(cfg.Database.Path)
	if err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	metricsCollector := metrics.NewCollector(store)

	var dispatcher *notifications.Dispatcher
	if cfg.Gateway.Enabled {
		dispatcher, err = notifications.NewDispatcher(cfg.Gateway, notifications.NewClient(cfg.Gateway))
		if err != nil {
			logrus.Fatalf("Failed to initialize alert dispatcher: %v", err)
		}
	} else {
		logrus.Warn("Alert gateway disabled, status transitions will only be logged")
	}

	engine := monitoring.NewEngine(cfg, store, metricsCollector, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		engine.RunSweep(ctx)
		return
	}

	if cfg.Web.Enabled {
		webServer := web.NewServer(cfg, store, metricsCollector)
		if err := webServer.Start(ctx); err != nil {
			logrus.Fatalf("Failed to start web server: %v", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := webServer.Stop(shutdownCtx); err != nil {
				logrus.WithError(err).Error("Web server shutdown failed")
			}
		}()
	}

	go engine.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logrus.WithField("signal", sig).Info("Received shutdown signal")

	cancel()
	time.Sleep(2 * time.Second)
	logrus.Info("Shutdown complete")
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		logrus.SetOutput(io.MultiWriter(os.Stdout, rotated))
	}
}
