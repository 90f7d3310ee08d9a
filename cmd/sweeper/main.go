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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medimartlabs/medimart-backend/internal/cron"
	"github.com/medimartlabs/medimart-backend/internal/inventory"
	"github.com/medimartlabs/medimart-backend/internal/ledger"
	"github.com/medimartlabs/medimart-backend/internal/notifications"
	"github.com/medimartlabs/medimart-backend/internal/orders"
	"github.com/medimartlabs/medimart-backend/internal/users"
	"github.com/medimartlabs/medimart-backend/pkg/config"
	"github.com/medimartlabs/medimart-backend/pkg/db"
	"github.com/medimartlabs/medimart-backend/pkg/logger"
	"github.com/medimartlabs/medimart-backend/pkg/metrics"
	"github.com/medimartlabs/medimart-backend/pkg/migrate"
	"github.com/medimartlabs/medimart-backend/pkg/redis"
)

const lockScope = "sweeper"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweeper"

	logg = logger.New(logger.Options{
		ServiceName: "sweeper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	orderService, orderRepo, err := buildOrderService(dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire order service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger:        logg,
		PendingReader: orderRepo,
		Orders:        orderService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order expiry job", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope), cfg.Sweeper.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Sweeper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	httpServer := startOpsServer(ctx, cfg, logg, dbClient)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "ops server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting sweeper")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweeper stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweeper shutting down gracefully")
}

func buildOrderService(dbClient *db.Client, logg *logger.Logger) (orders.Service, orders.Repository, error) {
	orderRepo := orders.NewRepository(dbClient.DB())

	inventoryService, err := inventory.NewService(dbClient.DB())
	if err != nil {
		return nil, nil, fmt.Errorf("inventory service: %w", err)
	}

	eventService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, nil, fmt.Errorf("ledger service: %w", err)
	}

	emitter, err := notifications.NewEmitter(
		notifications.NewRepository(dbClient.DB()),
		users.NewRepository(dbClient.DB()),
		logg,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("notification emitter: %w", err)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orderRepo,
		Tx:        dbClient,
		Inventory: inventoryService,
		Events:    eventService,
		Notifier:  emitter,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("order service: %w", err)
	}
	return orderService, orderRepo, nil
}

func startOpsServer(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) *http.Server {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbClient.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "ops server stopped unexpectedly", err)
		}
	}()
	return server
}
