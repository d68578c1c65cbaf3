package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medly/medly-portal/internal/api"
	"github.com/medly/medly-portal/internal/config"
	"github.com/medly/medly-portal/internal/db"
	redisclient "github.com/medly/medly-portal/internal/redis"
	"github.com/medly/medly-portal/internal/scheduling"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := cfg.Logger("medly-api")
	logger.Info().Str("env", cfg.Env).Str("port", cfg.APIPort).Msg("medly-api starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo scheduling.Repository
	if cfg.PostgresDSN == "" && !cfg.IsProduction() {
		logger.Warn().Msg("POSTGRES_DSN not set, using in-memory store")
		repo = scheduling.NewMemoryRepository()
	} else {
		if err := cfg.RequirePostgres(); err != nil {
			logger.Fatal().Err(err).Msg("invalid config")
		}

		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()

		if err := db.Migrate(rootCtx, pgPool); err != nil {
			logger.Fatal().Err(err).Msg("migrate schema")
		}
		logger.Info().Msg("connected to Postgres")
		repo = scheduling.NewPgRepository(pgPool)
	}

	var (
		locker redisclient.Locker = redisclient.NopLocker{}
		rdb    *redis.Client
	)
	rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	switch {
	case err == nil:
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		logger.Info().Msg("connected to Redis")
	case cfg.IsProduction():
		logger.Fatal().Err(err).Msg("redis connection error")
	default:
		logger.Warn().Err(err).Msg("redis unavailable, slot locks disabled")
	}

	svc := scheduling.NewService(repo, locker, logger)
	auth := scheduling.NewAuth(repo, cfg.JWTSecret, cfg.TokenTTL)

	srv := &http.Server{
		Addr: ":" + cfg.APIPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service: svc,
			Auth:    auth,
			Redis:   rdb,
			Env:     cfg.Env,
			Version: version,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return rootCtx },
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down medly-api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
