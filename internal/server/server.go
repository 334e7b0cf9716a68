package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/config"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/crypto"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/database"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/lock"
	custommiddleware "github.com/Matlecks/TDD-SOLID-integration-shopify/internal/middleware"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/queue"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/service"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, redisClient *redis.Client) (*Server, error) {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.CORSOrigins, cfg.Server.Env == "development"))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"database": database.Health(db),
		})
	})

	cipher, err := crypto.NewTokenCipherFromHex(cfg.Shopify.TokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	// Initialize repositories
	shopRepo := repository.NewShopRepository(db)
	productRepo := repository.NewProductRepository(db)

	// Initialize queue and lease infrastructure shared with the worker
	jobQueue := queue.New(redisClient, logger, queue.Options{
		MaxAttempts:  cfg.Sync.MaxAttempts,
		RetryBackoff: cfg.Sync.RetryBackoff,
	})
	locker := lock.NewLocker(redisClient, "")

	// Initialize services
	shopService := service.NewShopService(shopRepo, cipher, logger)
	syncService := service.NewSyncService(shopRepo, jobQueue, locker, logger, service.SyncConfig{
		PageLimit: cfg.Sync.PageLimit,
		LeaseTTL:  cfg.Sync.LeaseTTL,
	})

	// Initialize handlers
	shopHandler := transport.NewShopHandler(shopService, logger)
	syncHandler := transport.NewSyncHandler(syncService, logger)
	productHandler := transport.NewProductHandler(productRepo, logger)

	// Create middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	adminMiddleware := custommiddleware.RequireAdmin(logger)
	syncRateLimit := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:sync",
	}, logger)

	// Register routes
	shopHandler.RegisterRoutes(router, authMiddleware, adminMiddleware)
	syncHandler.RegisterRoutes(router, authMiddleware, adminMiddleware, syncRateLimit)
	productHandler.RegisterRoutes(router, authMiddleware)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	return server, nil
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
