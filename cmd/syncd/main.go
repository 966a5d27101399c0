package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/studyplan/tg-media-sync/internal/checkpoint"
	"github.com/studyplan/tg-media-sync/internal/config"
	"github.com/studyplan/tg-media-sync/internal/database"
	"github.com/studyplan/tg-media-sync/internal/logger"
	"github.com/studyplan/tg-media-sync/internal/nats"
	"github.com/studyplan/tg-media-sync/internal/publisher"
	"github.com/studyplan/tg-media-sync/internal/repository"
	"github.com/studyplan/tg-media-sync/internal/syncer"
	"github.com/studyplan/tg-media-sync/internal/telegram"
)

func main() {
	// 1. Load config
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Msg("starting channel media sync service")

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Open database (session storage + run history)
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	runsRepo, err := repository.NewRunsRepository(db.GORM)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init runs repository")
	}

	// 5. Connect to NATS
	var pub syncer.EventPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.New(ctx, cfg.NatsURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to nats, publishing disabled")
		} else {
			defer nc.Close()
			if err := nc.EnsureSyncStream(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to ensure sync stream")
			}
			pub = publisher.NewNATSPublisher(nc)
		}
	}

	// 6. Initialize telegram manager
	if cfg.TGApiID == 0 || cfg.TGApiHash == "" {
		log.Fatal().Msg("TG_API_ID and TG_API_HASH are required")
	}

	tgManager := telegram.NewManager(cfg, db.GORM)
	if err := tgManager.Init(ctx); err != nil {
		log.Error().Err(err).Msg("telegram manager init failed")
		// continue, status stays Error/Unauthorized and syncs will refuse
	}

	tgClient := telegram.NewClientWithRate(tgManager, cfg.RateRPS)
	defer tgClient.Close()

	// 7. Checkpoint store and sync engine
	checkpoints, err := checkpoint.NewStore(cfg.StateDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init checkpoint store")
	}

	engine := syncer.NewEngine(tgClient, checkpoints, cfg, log)
	svc := syncer.NewService(tgClient, engine, runsRepo, pub, log)
	syncManager := syncer.NewSyncManager(svc)

	// 8. Kick off watchlist syncs
	watchlist, err := config.LoadWatchlist(cfg.WatchlistPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.WatchlistPath).Msg("failed to load watchlist")
	}
	for _, entry := range watchlist.Channels {
		opts := syncer.SyncOptions{
			Channel: strings.TrimPrefix(entry.Channel, "@"),
			Limit:   entry.Limit,
		}
		if _, err := syncManager.Start(ctx, opts); err != nil {
			log.Warn().Err(err).Str("channel", opts.Channel).Msg("failed to start watchlist sync")
		}
	}

	// 9. Start HTTP server
	handler := syncer.NewHandler(syncManager, runsRepo)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: syncer.NewRouter(handler),
	}

	log.Info().Int("port", cfg.HTTPPort).Msg("starting http server")
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// 10. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down services...")

	syncManager.StopAll()
	tgManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	log.Info().Msg("shutdown complete")
}
