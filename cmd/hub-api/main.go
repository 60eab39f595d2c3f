package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/dochub/internal/api"
	"github.com/edvin/dochub/internal/backup"
	"github.com/edvin/dochub/internal/config"
	"github.com/edvin/dochub/internal/core"
	"github.com/edvin/dochub/internal/db"
	"github.com/edvin/dochub/internal/logging"
	"github.com/edvin/dochub/internal/metrics"
	"github.com/edvin/dochub/internal/remotestore"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	store := remotestore.New(logger, remotestore.Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		ParentFolder: cfg.BackupParentName,
	})
	// Parent folder resolution happens in the background; triggers are
	// rejected with 503 until it completes.
	go func() {
		if err := store.Init(ctx); err != nil {
			logger.Error().Err(err).Msg("remote store initialization failed")
		}
	}()

	historySvc := core.NewHistoryService(pool)
	notificationSvc := core.NewNotificationService(pool)

	tracker := backup.NewTracker()
	exporter := backup.NewExporter(pool, backup.DefaultTables, nil)
	orchestrator := backup.NewOrchestrator(logger, tracker, historySvc, notificationSvc,
		exporter, backup.ArchiveBuilder{}, store, backup.Config{
			DocumentsDir: cfg.DocumentsDir,
			ParentFolder: cfg.BackupParentName,
		})
	go orchestrator.Run(ctx)

	scheduler := backup.NewScheduler(logger, orchestrator, cfg.ConnectivityProbeURL,
		cfg.AutoBackupInterval, cfg.SchedulerTick)
	go scheduler.Run(ctx)

	srv := api.NewServer(logger, pool, orchestrator, historySvc, notificationSvc, store.Ready)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting hub API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}
