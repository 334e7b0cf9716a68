package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/config"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/crypto"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/database"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/lock"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/logger"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/queue"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/service"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/shopify"
	syncpkg "github.com/Matlecks/TDD-SOLID-integration-shopify/internal/sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_jobs_processed_total",
		Help: "Total sync jobs processed, by result",
	}, []string{"result"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_job_duration_seconds",
		Help:    "Time spent processing one sync job",
		Buckets: prometheus.DefBuckets,
	})

	jobsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_jobs_pending",
		Help: "Jobs currently scheduled in the queue",
	})

	jobsDeadLettered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_jobs_dead_lettered",
		Help: "Jobs that exhausted their attempt budget",
	})
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting catalog sync worker",
		zap.String("env", cfg.Server.Env),
		zap.Int("concurrency", cfg.Worker.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	cipher, err := crypto.NewTokenCipherFromHex(cfg.Shopify.TokenKey)
	if err != nil {
		log.Fatal("Failed to initialize token cipher", zap.Error(err))
	}

	shopRepo := repository.NewShopRepository(db)
	productRepo := repository.NewProductRepository(db)

	jobQueue := queue.New(redisClient, log, queue.Options{
		MaxAttempts:  cfg.Sync.MaxAttempts,
		RetryBackoff: cfg.Sync.RetryBackoff,
	})
	locker := lock.NewLocker(redisClient, "")
	shopService := service.NewShopService(shopRepo, cipher, log)
	client := shopify.NewClient(cfg.Shopify.APIVersion, log)
	status := syncpkg.NewStatusRecorder(shopRepo, log)

	coordinator := syncpkg.NewCoordinator(
		shopRepo,
		productRepo,
		client,
		jobQueue,
		shopService,
		locker,
		status,
		log,
		syncpkg.Config{
			PageDelay: cfg.Sync.PageDelay,
			LeaseTTL:  cfg.Sync.LeaseTTL,
		},
	)
	refresher := syncpkg.NewRefresher(shopRepo, client, shopService, status, log)
	dispatcher := syncpkg.NewDispatcher(coordinator, refresher, log)

	// Metrics and health endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Worker.MetricsPort),
		Handler: mux,
	}
	go func() {
		log.Info("Metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server error", zap.Error(err))
		}
	}()

	// Sample queue depth for the gauges
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := jobQueue.Pending(ctx); err == nil {
					jobsPending.Set(float64(n))
				}
				if n, err := jobQueue.DeadLettered(ctx); err == nil {
					jobsDeadLettered.Set(float64(n))
				}
			}
		}
	}()

	// Periodically re-fetch every active shop's profile
	refreshInterval := cfg.Sync.ShopRefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = 2 * time.Hour
	}
	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				shops, err := shopRepo.List(ctx, true)
				if err != nil {
					log.Error("Failed to list shops for profile refresh", zap.Error(err))
					continue
				}
				for _, shop := range shops {
					if err := jobQueue.Enqueue(ctx, syncpkg.NewShopRefreshJob(shop.ID), 0); err != nil {
						log.Error("Failed to enqueue profile refresh",
							zap.String("shop_id", shop.ID.String()),
							zap.Error(err),
						)
					}
				}
				log.Info("Scheduled shop profile refreshes", zap.Int("shops", len(shops)))
			}
		}
	}()

	handler := func(ctx context.Context, job *queue.Job) error {
		start := time.Now()
		err := dispatcher.HandleJob(ctx, job)
		jobDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			jobsProcessed.WithLabelValues("error").Inc()
		} else {
			jobsProcessed.WithLabelValues("ok").Inc()
		}
		return err
	}

	exhausted := func(ctx context.Context, job *queue.Job, cause error) {
		jobsProcessed.WithLabelValues("exhausted").Inc()
		dispatcher.HandleExhausted(ctx, job, cause)
	}

	log.Info("Worker pool started")
	jobQueue.Run(ctx, cfg.Worker.Concurrency, handler, exhausted)

	// Run returns once ctx is canceled and every worker has drained.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server forced to shutdown", zap.Error(err))
	}

	log.Info("Worker exiting")
}
