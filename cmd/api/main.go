package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-analytics-api/internal/config"
	"media-analytics-api/internal/db"
	"media-analytics-api/internal/http/api"
	"media-analytics-api/internal/logging"
	"media-analytics-api/middleware/ratelimit"
	"media-analytics-api/middleware/ratelimit/application"
	"media-analytics-api/middleware/ratelimit/domain"
	"media-analytics-api/middleware/ratelimit/infra"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		log.WithError(err).Error("api failed")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(conn); err != nil {
		return err
	}

	stores, err := openRateStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.close()

	deps := api.Deps{
		DB: conn,
		Limiter: application.Service{
			Store:   stores.counter,
			Prefix:  cfg.RateKeyPrefix,
			Timeout: cfg.RateTimeout,
		},
		Policies:   cfg.Policies,
		JWTSecret:  cfg.JWTSecret,
		JWTExpiry:  cfg.JWTExpiry,
		TrustXFF:   cfg.TrustXFF,
		AddHeaders: cfg.AddHeaders,
		Concurrency: ratelimit.ConcurrencyOptions{
			Max:            cfg.ConcurrencyMax,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.ConcurrencyTimeout,
		},
		Ping:         stores.ping,
		StatsTimeout: cfg.RateTimeout,
	}
	if cfg.RateStatsEnabled {
		deps.Stats = stores.stats
		deps.StatsReader = stores.stats
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	log.WithFields(log.Fields{"addr": cfg.ListenAddr, "db": cfg.DBDriver}).Info("api listening")
	log.WithFields(log.Fields{"store": cfg.RateStore, "prefix": cfg.RateKeyPrefix, "timeout": cfg.RateTimeout, "trustXFF": cfg.TrustXFF}).Info("rate limit")
	for name, rp := range cfg.Policies {
		log.WithFields(log.Fields{"policy": name, "limit": rp.Policy.MaxRequests, "window": rp.Policy.Window, "mode": rp.FailureMode}).Info("rate limit policy")
	}
	log.WithFields(log.Fields{"enabled": cfg.RateStatsEnabled, "prefix": cfg.RateStatsPrefix, "ttl": cfg.RateStatsTTL}).Info("rate-stats")
	log.WithFields(log.Fields{"max": cfg.ConcurrencyMax, "acquireTimeout": cfg.ConcurrencyTimeout}).Info("concurrency")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

type rateStores struct {
	counter domain.CounterStore
	stats   interface {
		domain.StatsStore
		domain.StatsReader
	}
	ping  func(ctx context.Context) error
	close func()
}

// openRateStores escolhe o backend do contador (RATE_STORE). As estatísticas
// ficam no mesmo backend.
func openRateStores(ctx context.Context, cfg config.Config) (rateStores, error) {
	if cfg.RateStore == config.StoreMemory {
		mem := infra.NewMemoryCounterStore()
		mem.StartJanitor(ctx)
		log.Warn("rate limit: memory store is per-process; do not run more than one instance")
		return rateStores{
			counter: mem,
			stats:   infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.RateStatsTrackKeys)),
			close:   func() {},
		}, nil
	}

	rdb := infra.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_, err := rdb.Ping(pingCtx).Result()
	cancel()
	if err != nil {
		// sobe mesmo assim: cada rota decide entre fail-open e fail-closed
		log.WithError(err).Warn("redis ping failed at startup")
	}

	var counter domain.CounterStore = infra.NewRedisCounterStore(rdb)
	if cfg.RateStore == config.StoreRedisWatch {
		counter = infra.NewRedisWatchCounterStore(rdb)
	}

	return rateStores{
		counter: counter,
		stats: infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.RateStatsPrefix),
			infra.WithStatsTTL(cfg.RateStatsTTL),
			infra.WithStatsBucket(cfg.RateStatsBucket),
			infra.WithStatsTrackKeys(cfg.RateStatsTrackKeys),
		),
		ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		close: func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Warn("failed to close redis client")
			}
		},
	}, nil
}
