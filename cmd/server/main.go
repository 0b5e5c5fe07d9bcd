package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artfusion/internal/config"
	"artfusion/internal/db"
	"artfusion/internal/logging"
	"artfusion/internal/server"
	"artfusion/internal/store"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func main() {
	portFlag := flag.String("port", "", "port to listen on (overrides PORT)")
	flag.Parse()

	dotEnvErr := config.LoadDotEnv(".env")
	cfg := config.Load()
	if *portFlag != "" {
		cfg.Port = *portFlag
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogPretty)
	if dotEnvErr != nil {
		logger.Warn().Err(dotEnvErr).Msg("failed to load .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conn *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		conn, err = db.Open(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		if err := db.Migrate(conn); err != nil {
			logger.Fatal().Err(err).Msg("database migration failed")
		}
	} else {
		logger.Info().Msg("DATABASE_URL not set; event log and artwork archive disabled")
	}

	opts := []server.Option{server.WithLogger(logger)}
	switch cfg.StoreBackend {
	case config.StoreRedis:
		rdb, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer rdb.Close()
		opts = append(opts, server.WithStore(rdb))
		logger.Info().Str("store", cfg.StoreBackend).Msg("using shared store")
	default:
		opts = append(opts, server.WithStore(store.NewMemory()))
		logger.Info().Str("store", config.StoreMemory).Msg("using in-process store")
	}
	if cfg.ReplicateAPIToken == "" {
		logger.Warn().Bool("fallback", cfg.GenerationFallback).Msg("REPLICATE_API_TOKEN not set; generation will fail")
	}

	srv := server.New(conn, cfg, opts...)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("artfusion server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
