// Package sync contains the product synchronization pipeline: the page
// coordinator state machine and the failure classifier.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/queue"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/shopify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PageJob is the continuation message carried between one coordinator
// invocation and the next. SinceID 0 marks the first page.
type PageJob struct {
	ShopID     uuid.UUID `json:"shop_id"`
	Page       int       `json:"page"`
	SinceID    int64     `json:"since_id"`
	Limit      int       `json:"limit"`
	LeaseToken string    `json:"lease_token"`
}

// ProductLister is the slice of the Shopify client the coordinator uses.
type ProductLister interface {
	ListProducts(ctx context.Context, baseURL, accessToken string, sinceID int64, limit int) ([]shopify.RawProduct, error)
}

// Enqueuer schedules the next page continuation.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload interface{}, delay time.Duration) error
}

// CredentialProvider returns a decrypted access token for a shop. The
// token is obtained fresh for every page and never cached here.
type CredentialProvider interface {
	AccessToken(ctx context.Context, shop *domain.Shop) (string, error)
}

// LeaseKeeper maintains the per-shop sync lease across the chain.
type LeaseKeeper interface {
	Refresh(ctx context.Context, shopID uuid.UUID, token string, ttl time.Duration) error
	Release(ctx context.Context, shopID uuid.UUID, token string) error
}

// Config tunes the coordinator.
type Config struct {
	// PageDelay is the fixed delay before the next page's continuation
	// becomes eligible, keeping the chain under Shopify's rate limit.
	PageDelay time.Duration
	// LeaseTTL is how long the shop lease stays valid without a refresh.
	LeaseTTL time.Duration
}

// Coordinator processes exactly one catalog page per invocation and
// decides whether to chain a continuation or terminate.
type Coordinator struct {
	shops       repository.ShopRepository
	products    repository.ProductRepository
	client      ProductLister
	queue       Enqueuer
	credentials CredentialProvider
	lease       LeaseKeeper
	status      *StatusRecorder
	logger      *zap.Logger
	cfg         Config
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(
	shops repository.ShopRepository,
	products repository.ProductRepository,
	client ProductLister,
	q Enqueuer,
	credentials CredentialProvider,
	lease LeaseKeeper,
	status *StatusRecorder,
	logger *zap.Logger,
	cfg Config,
) *Coordinator {
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	return &Coordinator{
		shops:       shops,
		products:    products,
		client:      client,
		queue:       q,
		credentials: credentials,
		lease:       lease,
		status:      status,
		logger:      logger,
		cfg:         cfg,
	}
}

// HandleJob adapts the coordinator to the queue's handler contract.
func (c *Coordinator) HandleJob(ctx context.Context, job *queue.Job) error {
	var pageJob PageJob
	if err := json.Unmarshal(job.Payload, &pageJob); err != nil {
		// Not retryable and no shop to annotate; drop with a log line.
		c.logger.Error("Discarding undecodable sync job",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return nil
	}
	return c.SyncPage(ctx, pageJob)
}

// HandleExhausted is the queue's dead-letter callback: the retry budget is
// spent, so the chain ends in terminal failure.
func (c *Coordinator) HandleExhausted(ctx context.Context, job *queue.Job, cause error) {
	var pageJob PageJob
	if err := json.Unmarshal(job.Payload, &pageJob); err != nil {
		c.logger.Error("Dead-lettered job has undecodable payload",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	c.status.RecordFailure(ctx, pageJob.ShopID, cause)
	c.releaseLease(ctx, pageJob)
}

// SyncPage runs the page state machine: fetch, reconcile every item, then
// decide between a continuation and a terminal state. A returned error
// means the page is retryable; terminal outcomes return nil.
func (c *Coordinator) SyncPage(ctx context.Context, job PageJob) error {
	log := c.logger.With(
		zap.String("shop_id", job.ShopID.String()),
		zap.Int("page", job.Page),
		zap.Int64("since_id", job.SinceID),
	)

	shop, err := c.shops.FindByID(ctx, job.ShopID)
	if err != nil {
		if errors.Is(err, repository.ErrShopNotFound) {
			log.Warn("Shop vanished mid-sync, terminating chain")
			c.releaseLease(ctx, job)
			return nil
		}
		return fmt.Errorf("failed to load shop: %w", err)
	}

	// Deactivation mid-chain aborts cleanly instead of paging on.
	if !shop.Active() {
		log.Info("Shop is inactive, sync skipped")
		c.releaseLease(ctx, job)
		return nil
	}

	token, err := c.credentials.AccessToken(ctx, shop)
	if err != nil {
		c.status.RecordFailure(ctx, job.ShopID, err)
		c.releaseLease(ctx, job)
		return nil
	}

	if err := c.lease.Refresh(ctx, job.ShopID, job.LeaseToken, c.cfg.LeaseTTL); err != nil {
		log.Warn("Failed to refresh sync lease", zap.Error(err))
	}

	items, err := c.client.ListProducts(ctx, "https://"+shop.ShopifyDomain, token, job.SinceID, job.Limit)
	if err != nil {
		if Classify(err) == Fatal {
			c.status.RecordFailure(ctx, job.ShopID, err)
			c.releaseLease(ctx, job)
			return nil
		}
		return err
	}

	if len(items) == 0 {
		log.Info("Empty page, nothing left to sync")
		c.status.RecordSuccess(ctx, job.ShopID)
		c.releaseLease(ctx, job)
		return nil
	}

	reconciled, skipped, err := c.reconcilePage(ctx, job.ShopID, items, log)
	if err != nil {
		// Page-level storage failure; the queue retries the whole page,
		// which is safe because upserts are idempotent.
		return err
	}

	nextSinceID := items[len(items)-1].ID
	if err := c.shops.UpdateSyncCheckpoint(ctx, job.ShopID, job.Page, nextSinceID); err != nil {
		// The checkpoint is a recovery aid; reconciliation already
		// succeeded, so a failed write must not fail the page.
		log.Warn("Failed to persist sync checkpoint", zap.Error(err))
	}

	log.Info("Page reconciled",
		zap.Int("count", len(items)),
		zap.Int("reconciled", reconciled),
		zap.Int("skipped", skipped),
	)

	if len(items) < job.Limit {
		c.status.RecordSuccess(ctx, job.ShopID)
		c.releaseLease(ctx, job)
		return nil
	}

	continuation := PageJob{
		ShopID:     job.ShopID,
		Page:       job.Page + 1,
		SinceID:    nextSinceID,
		Limit:      job.Limit,
		LeaseToken: job.LeaseToken,
	}
	if err := c.queue.Enqueue(ctx, continuation, c.cfg.PageDelay); err != nil {
		// Re-running this page is safe, upserts are idempotent.
		return fmt.Errorf("failed to enqueue continuation: %w", err)
	}

	return nil
}

// reconcilePage upserts every translated aggregate. A constraint violation
// on one record is logged and skipped; it must not abort the page. Any
// other storage failure aborts early and fails the page.
func (c *Coordinator) reconcilePage(ctx context.Context, shopID uuid.UUID, items []shopify.RawProduct, log *zap.Logger) (reconciled, skipped int, err error) {
	for _, item := range items {
		agg := shopify.TranslateProduct(item)
		if _, upsertErr := c.products.UpsertAggregate(ctx, shopID, agg); upsertErr != nil {
			if errors.Is(upsertErr, repository.ErrConstraintViolation) {
				log.Warn("Skipping product rejected by storage",
					zap.Int64("shopify_product_id", item.ID),
					zap.String("title", item.Title),
					zap.Error(upsertErr),
				)
				skipped++
				continue
			}
			log.Error("Storage error during reconciliation",
				zap.Int64("shopify_product_id", item.ID),
				zap.Error(upsertErr),
			)
			return reconciled, skipped, fmt.Errorf("reconcile product %d: %w", item.ID, upsertErr)
		}
		reconciled++
	}
	return reconciled, skipped, nil
}

func (c *Coordinator) releaseLease(ctx context.Context, job PageJob) {
	if job.LeaseToken == "" {
		return
	}
	if err := c.lease.Release(ctx, job.ShopID, job.LeaseToken); err != nil {
		c.logger.Warn("Failed to release sync lease",
			zap.String("shop_id", job.ShopID.String()),
			zap.Error(err),
		)
	}
}
