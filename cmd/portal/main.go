package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/medly/medly-portal/internal/config"
	"github.com/medly/medly-portal/internal/medlyapi"
	"github.com/medly/medly-portal/internal/portal"
	redisclient "github.com/medly/medly-portal/internal/redis"
	"github.com/medly/medly-portal/internal/session"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := cfg.Logger("portal")
	logger.Info().Str("env", cfg.Env).Str("port", cfg.HTTPPort).Str("medly_api", cfg.MedlyAPIURL).Msg("portal starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	client := medlyapi.New(cfg.MedlyAPIURL,
		medlyapi.WithTimeout(cfg.HTTPClientTimeout),
		medlyapi.WithLogger(logger),
	)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: portal.NewRouter(portal.Config{
			API:            client,
			Sessions:       session.NewRedisStore(rdb, cfg.SessionTTL),
			Locker:         redisclient.NewRedisLocker(rdb, cfg.SubmitLockTTL),
			Redis:          rdb,
			Logger:         logger,
			Env:            cfg.Env,
			Version:        version,
			SearchPageSize: cfg.SearchPageSize,
			WorkspaceIdle:  cfg.SessionTTL,
			SecureCookies:  cfg.IsProduction(),
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
	logger.Info().Msg("shutting down portal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
