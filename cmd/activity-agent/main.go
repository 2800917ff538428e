package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"activity-agent/internal/client"
	"activity-agent/internal/config"
	"activity-agent/internal/database"
	"activity-agent/internal/device"
	"activity-agent/internal/logger"
	"activity-agent/internal/queue"
	"activity-agent/internal/tray"
	"activity-agent/internal/watcher"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting activity agent",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	deviceManager := device.NewManager()
	deviceID, err := deviceManager.GetOrGenerateID(cfg.Device.ID)
	if err != nil {
		log.Fatal("Failed to resolve device ID", zap.Error(err))
	}
	log.Info("Device identity resolved",
		zap.String("device_id", deviceID),
		zap.String("hostname", deviceManager.Hostname()),
	)

	db, err := database.New(cfg.StoragePath, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}

	heartbeatQueue := queue.NewHeartbeatQueue(db.DB, log.Logger)

	reportClient := client.NewReportClient(client.Options{
		BaseURL:            cfg.Server.BaseURL,
		Timeout:            time.Duration(cfg.Server.Timeout) * time.Second,
		Hostname:           deviceManager.Hostname(),
		PollIntervalWindow: cfg.PollIntervalWindow(),
		PollIntervalIdle:   cfg.PollIntervalIdle(),
		IdleTimeout:        cfg.IdleTimeout(),
		FlushInterval:      cfg.FlushInterval(),
	}, heartbeatQueue, log.Logger)

	if err := reportClient.EnsureBuckets(); err != nil {
		// Heartbeats queue locally until the collector comes back
		log.Warn("Collector unreachable at startup", zap.Error(err))
	}

	// Construct both watchers before running either, so a missing session
	// or idle counter stops the agent before any reporting starts
	toplevelWatcher, err := watcher.NewToplevelWatcher(cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize toplevel watcher", zap.Error(err))
	}

	idleWatcher, err := watcher.NewIdleWatcher(cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize idle watcher", zap.Error(err))
	}

	reportClient.StartFlusher()

	// Each watcher owns its state and runs forever on its own goroutine;
	// they share only the report client
	watcherErr := make(chan error, 2)
	go func() {
		watcherErr <- toplevelWatcher.Watch(reportClient)
	}()
	go func() {
		watcherErr <- idleWatcher.Watch(reportClient)
	}()

	log.Info("Activity agent started",
		zap.String("collector", cfg.Server.BaseURL),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	trayQuit := make(chan struct{})
	if cfg.Tray.Enabled {
		statusTray := tray.New(log.Logger, func() {
			close(trayQuit)
		})
		go statusTray.Run()
	}

	exitCode := 0
	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-trayQuit:
		log.Info("Shutting down from tray")
	case err := <-watcherErr:
		// A watcher only returns on an unrecoverable session failure
		log.Error("Watcher stopped", zap.Error(err))
		exitCode = 1
	}

	reportClient.StopFlusher()

	if err := heartbeatQueue.CleanupOldHeartbeats(7 * 24 * time.Hour); err != nil {
		log.Error("Failed to cleanup old heartbeats", zap.Error(err))
	}

	if err := db.Close(); err != nil {
		log.Error("Failed to close database", zap.Error(err))
	}

	log.Info("Activity agent stopped")
	log.Sync()
	os.Exit(exitCode)
}
