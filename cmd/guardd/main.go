package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/iotguard/guardd/internal/api/routes"
	"github.com/iotguard/guardd/internal/config"
	"github.com/iotguard/guardd/internal/database"
	"github.com/iotguard/guardd/internal/engine"
	"github.com/iotguard/guardd/internal/hook"
	"github.com/iotguard/guardd/internal/logger"
	"github.com/iotguard/guardd/internal/metrics"
	"github.com/iotguard/guardd/internal/server"
	"github.com/iotguard/guardd/internal/services"
	"github.com/iotguard/guardd/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Setup logging with rotation
	logDir := filepath.Join(cfg.DataDir, "logs")
	_ = os.MkdirAll(logDir, 0755)
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "guardd.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.Environment == "development", io.MultiWriter(os.Stdout, rotator))

	logger.Log().Infof("starting %s version %s", version.Name, version.Full())

	// Initial decision policy. A missing file starts on defaults (dry-run
	// on); a present-but-invalid file is fatal, since there is no safe
	// policy to fall back to.
	snap, err := config.LoadSnapshotFile(cfg.DecisionConfigPath)
	if err != nil {
		logger.Log().WithError(err).Fatal("invalid decision config")
	}
	store := config.NewStore(snap)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Log().WithError(err).Fatal("open database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Log().WithError(err).Fatal("migrate database")
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	notify := services.NewNotificationService(cfg.NotifyURLs)
	actions := services.NewActionService(db, notify)

	if cfg.JWTSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Log().WithError(err).Fatal("generate jwt secret")
		}
		cfg.JWTSecret = hex.EncodeToString(buf)
		logger.Log().Warn("GUARDD_JWT_SECRET not set, using an ephemeral secret; sessions reset on restart")
	}
	auth := services.NewAuthService(db, cfg.JWTSecret)
	if err := auth.Bootstrap(cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Log().WithError(err).Fatal("bootstrap admin account")
	}

	hooks := map[config.HookSelector]hook.Hook{
		config.HookPosix:   hook.NewScriptHook(cfg.PosixHookCommand, cfg.HookTimeout),
		config.HookWindows: hook.NewScriptHook(cfg.WindowsHookCommand, cfg.HookTimeout),
	}

	eng := engine.New(store, hooks, actions, cfg.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)

	watcher, err := config.NewWatcher(store, cfg.DecisionConfigPath)
	if err != nil {
		logger.Log().WithError(err).Fatal("create config watcher")
	}
	if err := watcher.Start(); err != nil {
		// The daemon can still run on the startup policy; reloads require
		// a restart until the path becomes watchable.
		logger.Log().WithError(err).Warn("decision config not watchable, hot reload disabled")
	} else {
		defer watcher.Close()
	}

	// SIGHUP forces a reload without touching the file.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			watcher.Reload()
		}
	}()

	housekeeping := services.NewHousekeepingService(eng, actions, cfg.SweepSchedule, cfg.EvictAfter, cfg.RecordRetention)
	if err := housekeeping.Start(); err != nil {
		logger.Log().WithError(err).Fatal("start housekeeping")
	}
	defer housekeeping.Stop()

	srv := server.New(cfg, routes.Deps{
		DB:       db,
		Store:    store,
		Engine:   eng,
		Actions:  actions,
		Auth:     auth,
		Registry: registry,
	})

	logger.Log().Infof("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		logger.Log().WithError(err).Fatal("server error")
	}

	eng.Wait()
}
