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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	adminecho "go.pilab.hu/oidcstore/api/echo"
	"go.pilab.hu/oidcstore/codec"
	"go.pilab.hu/oidcstore/config"
	"go.pilab.hu/oidcstore/identity"
	"go.pilab.hu/oidcstore/internal/housekeeping"
	"go.pilab.hu/oidcstore/internal/server"
	"go.pilab.hu/oidcstore/internal/telemetry"
	"go.pilab.hu/oidcstore/log"
	"go.pilab.hu/oidcstore/metrics"
	"go.pilab.hu/oidcstore/reactive"
	"go.pilab.hu/oidcstore/reactive/bolt"
	"go.pilab.hu/oidcstore/reactive/redis"
	"go.pilab.hu/oidcstore/stores"
	"go.pilab.hu/oidcstore/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	zl := log.NewZerolog(os.Stdout, log.ParseLevel(cfg.LogLevel), cfg.LogPretty)
	zlog.Logger = zl
	appLogger := log.NewZerologAdapterFrom(zl)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting oidcstore...", map[string]interface{}{
		"http_addr":     cfg.HTTPAddr,
		"store_backend": cfg.StoreBackend,
		"snapshot_path": cfg.SnapshotPath,
		"log_level":     cfg.LogLevel,
		"otel_service":  cfg.OtelServiceName,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	mp, err := telemetry.InitMeterProvider(reg)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MeterProvider", err)
	}

	// --- Intent log and replica ---
	var intentLog reactive.IntentLog
	var redisClient *goredis.Client
	switch cfg.StoreBackend {
	case config.BackendRedis:
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			appLogger.Fatal(ctx, "Failed to connect to Redis", err, map[string]interface{}{"addr": cfg.RedisAddr})
		}
		intentLog = redis.NewLog(redisClient, cfg.RedisStream)
	default:
		intentLog = reactive.NewMemoryLog()
	}

	opts := []reactive.Option{reactive.WithApplyDelay(cfg.ReplicationDelay)}
	var checkpoint *bolt.Checkpoint
	if cfg.SnapshotPath != "" {
		checkpoint, err = bolt.Open(cfg.SnapshotPath)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to open snapshot checkpoint", err, map[string]interface{}{"path": cfg.SnapshotPath})
		}
		opts = append(opts, reactive.WithCheckpoint(checkpoint))
	}

	replica, err := reactive.NewReplica(intentLog, opts...)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to start replica", err)
	}
	appLogger.Info(ctx, "Replica started", map[string]interface{}{"position": replica.Position()})

	// --- Stores ---
	ids := identity.NewMapper(replica, appLogger, cfg.PendingTTL)
	c := codec.New(appLogger)
	applications := stores.NewApplicationStore(replica, ids, c, appLogger)
	authorizations := stores.NewAuthorizationStore(replica, ids, c, appLogger)
	scopes := stores.NewScopeStore(replica, ids, c, appLogger)
	tokens := stores.NewTokenStore(replica, ids, c, appLogger)

	pruner := housekeeping.NewPruner(tokens, authorizations, appLogger,
		cfg.PruneInterval, cfg.TokenRetention, cfg.AuthorizationRetention)
	pruner.Start()

	// --- HTTP ---
	adminAPI := adminecho.NewAdminAPI(&adminecho.AdminAPIOptions{
		Applications:   applications,
		Authorizations: authorizations,
		Scopes:         scopes,
		Tokens:         tokens,
		Gatherer:       reg,
		Replica:        replica,
		Logger:         appLogger,
	})
	httpServer := server.NewHTTPServer(cfg, appLogger, adminAPI)
	go func() {
		appLogger.Info(ctx, fmt.Sprintf("Admin HTTP server listening on %s", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down...", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}

	pruner.Stop()
	ids.Close()

	if err := replica.Close(); err != nil {
		appLogger.Error(shutdownCtx, "Replica shutdown error", err)
	}
	if err := intentLog.Close(); err != nil {
		appLogger.Error(shutdownCtx, "Intent log shutdown error", err)
	}
	if checkpoint != nil {
		if err := checkpoint.Close(); err != nil {
			appLogger.Error(shutdownCtx, "Checkpoint shutdown error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			appLogger.Error(shutdownCtx, "Redis client shutdown error", err)
		}
	}

	telemetry.Shutdown(shutdownCtx, mp)
	if err := tp.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
	}

	appLogger.Info(shutdownCtx, "oidcstore stopped.")
}
