package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/lock"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	syncpkg "github.com/Matlecks/TDD-SOLID-integration-shopify/internal/sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSyncInProgress = errors.New("a sync is already running for this shop")
)

// Enqueuer schedules sync jobs. Satisfied by the queue package.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload interface{}, delay time.Duration) error
}

// Leaser acquires the per-shop sync lease. Satisfied by the lock package.
type Leaser interface {
	Acquire(ctx context.Context, shopID uuid.UUID, ttl time.Duration) (string, error)
}

// SyncService is the external trigger surface for the sync pipeline: it
// starts a chain for one shop or for every active shop.
type SyncService interface {
	StartSync(ctx context.Context, shopID uuid.UUID) error
	SyncAllShops(ctx context.Context) (int, error)
}

// SyncConfig tunes chain starts.
type SyncConfig struct {
	PageLimit int
	LeaseTTL  time.Duration
}

type syncService struct {
	shops  repository.ShopRepository
	queue  Enqueuer
	leaser Leaser
	logger *zap.Logger
	cfg    SyncConfig
}

// NewSyncService creates a new instance of SyncService
func NewSyncService(shops repository.ShopRepository, queue Enqueuer, leaser Leaser, logger *zap.Logger, cfg SyncConfig) SyncService {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 50
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	return &syncService{
		shops:  shops,
		queue:  queue,
		leaser: leaser,
		logger: logger,
		cfg:    cfg,
	}
}

// StartSync acquires the shop's sync lease and enqueues the first page of
// a new chain. Only one chain per shop can run at a time.
func (s *syncService) StartSync(ctx context.Context, shopID uuid.UUID) error {
	shop, err := s.shops.FindByID(ctx, shopID)
	if err != nil {
		return err
	}
	if !shop.Active() {
		return ErrShopInactive
	}

	token, err := s.leaser.Acquire(ctx, shopID, s.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return ErrSyncInProgress
		}
		return fmt.Errorf("failed to acquire sync lease: %w", err)
	}

	job := syncpkg.PageJob{
		ShopID:     shopID,
		Page:       1,
		SinceID:    0,
		Limit:      s.cfg.PageLimit,
		LeaseToken: token,
	}
	if err := s.queue.Enqueue(ctx, job, 0); err != nil {
		return fmt.Errorf("failed to enqueue sync job: %w", err)
	}

	s.logger.Info("Sync chain started",
		zap.String("shop_id", shopID.String()),
		zap.String("shopify_domain", shop.ShopifyDomain),
		zap.Int("limit", s.cfg.PageLimit),
	)
	return nil
}

// SyncAllShops starts a chain for every active shop and returns the number
// of chains started. Shops whose lease is already held are skipped; any
// other failure is logged and the remaining shops still get their chain.
func (s *syncService) SyncAllShops(ctx context.Context) (int, error) {
	shops, err := s.shops.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list active shops: %w", err)
	}

	started := 0
	for _, shop := range shops {
		if err := s.StartSync(ctx, shop.ID); err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				s.logger.Info("Skipping shop with running sync",
					zap.String("shop_id", shop.ID.String()),
				)
				continue
			}
			s.logger.Error("Failed to start sync for shop",
				zap.String("shop_id", shop.ID.String()),
				zap.Error(err),
			)
			continue
		}
		started++
	}

	s.logger.Info("Dispatched sync chains", zap.Int("shops", len(shops)), zap.Int("started", started))
	return started, nil
}
