package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"punt/cfg"
	"punt/metrics"
	"punt/svc/api"
	"punt/svc/cache"
	"punt/svc/db"
	"punt/svc/lim"
	"punt/svc/svc"
	"punt/svc/util"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		healthCheck()
		return
	}

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Msg("starting punt API")
	metrics.Init()

	sqlDB, err := db.NewSQLiteWithConfig(c.DatabasePath, c.DBMaxOpenConns, c.DBMaxIdleConns, c.DBQueryTimeout)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize database")
		os.Exit(1)
	}
	defer sqlDB.Close()
	util.Info().Str("path", c.DatabasePath).Msg("database initialized")

	var rdb *db.Redis
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(c.RedisURL, c.RedisTimeout)
		if err != nil {
			if c.Environment == "production" {
				util.Fatal().Err(err).Msg("redis required in production when REDIS_URL is set")
				os.Exit(1)
			}
			util.Warn().Err(err).Msg("redis unavailable, burst counters fall back to sqlite")
			rdb = nil
		} else {
			util.Info().Msg("redis connected")
		}
	}
	if rdb != nil {
		defer rdb.Close()
	}

	creds, err := cache.NewCredentials(c.CredCacheSize, c.CredCacheTTL)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create credential cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.CredCacheSize).Msg("credential cache initialized")

	pasteSvc := svc.NewPaste(sqlDB, c)
	util.Info().Int("workers", c.ViewWorkers).Msg("paste service initialized")
	tokenSvc := svc.NewTokens(sqlDB, creds)
	deviceSvc := svc.NewDevice(sqlDB, tokenSvc, c)

	limiter := lim.New(sqlDB, rdb, c.Quota)
	util.Info().
		Int("anon_daily", c.Quota.AnonDaily).
		Int("auth_daily", c.Quota.AuthDaily).
		Msg("quota limiter initialized")

	server := api.NewServer(c, api.Deps{
		Paste:  pasteSvc,
		Tokens: tokenSvc,
		Device: deviceSvc,
		Lim:    limiter,
		DB:     sqlDB,
		Redis:  rdb,
	})

	quitWAL := make(chan struct{})
	go db.StartWALMaintenance(sqlDB.DB(), quitWAL)
	util.Info().Msg("WAL maintenance worker started")

	sweeper := svc.NewSweeper(sqlDB, c.SweepInterval)
	sweeper.Start()
	util.Info().Dur("interval", c.SweepInterval).Msg("expiry sweeper started")

	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()
	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	sweeper.Stop()
	close(quitWAL)
	pasteSvc.Shutdown()
	util.Info().Msg("shutdown complete")
}

// healthCheck is the container healthcheck entrypoint: exit 0 iff the
// database answers a ping.
func healthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "punt.db"
	}
	sqlDB, err := db.NewSQLite(dbPath)
	if err != nil {
		os.Exit(1)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(ctx); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}
