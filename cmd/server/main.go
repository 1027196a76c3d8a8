package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/santiago-gil/tools-tracker/internal/adapter/handler"
	"github.com/santiago-gil/tools-tracker/internal/adapter/storage"
	"github.com/santiago-gil/tools-tracker/internal/cache"
	"github.com/santiago-gil/tools-tracker/internal/config"
	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/core/service"
	"github.com/santiago-gil/tools-tracker/internal/port"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	toolCache, err := cache.New[[]domain.Tool](cache.Config{
		TTL:            cfg.Cache.TTL(),
		MaxAge:         cfg.Cache.MaxAge(),
		RefreshTimeout: cfg.Cache.RefreshTimeout(),
	}, log, cache.NewMetrics(registry, "tools"))
	if err != nil {
		log.Fatal("failed to build cache", zap.Error(err))
	}

	audit := service.NewStoreAuditRecorder(store, cfg.Store.AuditCollection, log)
	versions := service.NewVersionController(store, cfg.Store.ToolsCollection, log)
	tools := service.NewToolService(store, toolCache, versions, audit, cfg.Store.ToolsCollection, log)

	mux := http.NewServeMux()
	handler.NewHTTPHandler(tools, audit, log).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    cfg.HTTP.ListenAddress,
		Handler: mux,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTP.ListenAddress))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("HTTP server stopped")
}

// openStore builds the configured document store and returns a cleanup for
// its connections.
func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (port.DocumentStore, func(), error) {
	switch cfg.Backend {
	case config.StoreMySQL:
		db, err := sql.Open("mysql", cfg.MySQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("connected to mysql")
		return storage.NewMySQLStore(db), func() { db.Close() }, nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		log.Info("connected to redis")
		return storage.NewRedisStore(rdb), func() { rdb.Close() }, nil

	default:
		log.Info("using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}
}
