package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/queue"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/shopify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KindShopRefresh discriminates shop profile refresh payloads from page
// continuations on the shared queue.
const KindShopRefresh = "shop_refresh"

// ShopRefreshJob asks the worker to re-fetch one shop's profile from
// shop.json and store the result.
type ShopRefreshJob struct {
	Kind   string    `json:"kind"`
	ShopID uuid.UUID `json:"shop_id"`
}

// NewShopRefreshJob builds a refresh job for one shop.
func NewShopRefreshJob(shopID uuid.UUID) ShopRefreshJob {
	return ShopRefreshJob{Kind: KindShopRefresh, ShopID: shopID}
}

// ShopFetcher is the slice of the Shopify client the refresher uses.
type ShopFetcher interface {
	GetShop(ctx context.Context, baseURL, accessToken string) (*shopify.RawShop, error)
}

// Refresher keeps the locally stored shop profile (name, email, plan,
// domains) current. Shop details change on Shopify's side without any
// webhook, so they are re-fetched on a schedule.
type Refresher struct {
	shops       repository.ShopRepository
	client      ShopFetcher
	credentials CredentialProvider
	status      *StatusRecorder
	logger      *zap.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(
	shops repository.ShopRepository,
	client ShopFetcher,
	credentials CredentialProvider,
	status *StatusRecorder,
	logger *zap.Logger,
) *Refresher {
	return &Refresher{
		shops:       shops,
		client:      client,
		credentials: credentials,
		status:      status,
		logger:      logger,
	}
}

// RefreshShop fetches shop.json and stores the profile fields. A returned
// error is retryable; terminal outcomes return nil, with fatal failures
// recorded on the shop's sync status.
func (r *Refresher) RefreshShop(ctx context.Context, shopID uuid.UUID) error {
	log := r.logger.With(zap.String("shop_id", shopID.String()))

	shop, err := r.shops.FindByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, repository.ErrShopNotFound) {
			log.Warn("Shop vanished before profile refresh")
			return nil
		}
		return fmt.Errorf("failed to load shop: %w", err)
	}

	if !shop.Active() {
		log.Info("Shop is inactive, profile refresh skipped")
		return nil
	}

	token, err := r.credentials.AccessToken(ctx, shop)
	if err != nil {
		r.status.RecordFailure(ctx, shopID, err)
		return nil
	}

	raw, err := r.client.GetShop(ctx, "https://"+shop.ShopifyDomain, token)
	if err != nil {
		if Classify(err) == Fatal {
			r.status.RecordFailure(ctx, shopID, err)
			return nil
		}
		return err
	}

	profile := domain.ShopProfile{
		Name:          raw.Name,
		Email:         raw.Email,
		Domain:        raw.Domain,
		ShopifyDomain: raw.MyshopifyDomain,
		PlanName:      raw.PlanName,
	}
	// A sparse shop.json must not blank out the identifying domains.
	if profile.Domain == "" {
		profile.Domain = shop.Domain
	}
	if profile.ShopifyDomain == "" {
		profile.ShopifyDomain = shop.ShopifyDomain
	}

	if err := r.shops.UpdateProfile(ctx, shopID, profile); err != nil {
		return fmt.Errorf("failed to store shop profile: %w", err)
	}

	log.Info("Shop profile refreshed",
		zap.String("shopify_domain", profile.ShopifyDomain),
		zap.String("plan_name", profile.PlanName),
	)
	return nil
}

// HandleExhausted records a terminal failure once a refresh job's retry
// budget is spent. Refresh jobs carry no lease, there is nothing to release.
func (r *Refresher) HandleExhausted(ctx context.Context, job *queue.Job, cause error) {
	var refreshJob ShopRefreshJob
	if err := json.Unmarshal(job.Payload, &refreshJob); err != nil {
		r.logger.Error("Dead-lettered refresh job has undecodable payload",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	r.status.RecordFailure(ctx, refreshJob.ShopID, cause)
}
