// Command authcore-server runs the identity and session HTTP API.
//
// Configuration comes from AUTHCORE_* environment variables, optionally
// loaded from a .env file. Without AUTHCORE_DATABASE_URL accounts live in
// memory and are lost on restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/envconfig"
	"github.com/MrEthical07/authcore/httpapi"
	"github.com/MrEthical07/authcore/kafkasink"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
)

func main() {
	env, err := envconfig.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := newLogger(env.LogLevel, env.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, env, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, env envconfig.Env, logger *zap.Logger) error {
	cfg, err := env.EngineConfig()
	if err != nil {
		return err
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    env.RedisAddrs,
		Password: env.RedisPassword,
		DB:       env.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	accounts, closeStore, err := openAccountStore(ctx, env, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	builder := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithLogger(logger).
		WithNotifier(logNotifier(logger))

	switch {
	case !env.AuditEnabled:
	case len(env.KafkaBrokers) > 0:
		sink, err := kafkasink.New(kafkasink.Config{
			Brokers:  env.KafkaBrokers,
			Topic:    env.KafkaAuditTopic,
			ClientID: "authcore",
		}, logger)
		if err != nil {
			return err
		}
		defer sink.Close()
		builder = builder.WithAuditSink(authcore.MultiSink{authcore.NewZapSink(logger), sink})
	default:
		builder = builder.WithAuditSink(authcore.NewZapSink(logger))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	api := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           httpapi.New(engine, logger).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	servers := []*http.Server{api}

	if env.MetricsEnabled && env.MetricsAddr != "" {
		metricsHandler, err := promexport.Handler(engine)
		if err != nil {
			return fmt.Errorf("metrics handler: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		servers = append(servers, &http.Server{
			Addr:              env.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.ShutdownIn)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	return nil
}

func openAccountStore(ctx context.Context, env envconfig.Env, logger *zap.Logger) (account.Store, func(), error) {
	if env.DatabaseURL == "" {
		logger.Warn("AUTHCORE_DATABASE_URL not set, accounts are kept in memory")
		return memory.New(), func() {}, nil
	}

	if env.MigrateOnBoot {
		if err := postgres.Migrate(env.DatabaseURL, logger); err != nil {
			return nil, nil, err
		}
	}
	pool, err := pgxpool.New(ctx, env.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	return postgres.New(pool), pool.Close, nil
}

// logNotifier stands in for a mail gateway. It writes codes to the log and
// must not be used where logs leave the host.
func logNotifier(logger *zap.Logger) authcore.Notifier {
	l := logger.Named("notifier")
	return authcore.NotifierFunc(func(_ context.Context, msg authcore.Message) error {
		l.Info("outbound message",
			zap.String("kind", string(msg.Kind)),
			zap.String("account_id", msg.AccountID),
			zap.String("reference", msg.Reference),
			zap.String("code", msg.Code),
			zap.Time("expires_at", msg.ExpiresAt),
		)
		return nil
	})
}

func newLogger(level, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg.Level = lvl
	return cfg.Build()
}
