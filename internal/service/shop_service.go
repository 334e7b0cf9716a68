package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/crypto"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrShopInactive = errors.New("shop is not active")
)

// InstallParams carries the result of a completed OAuth exchange. The
// exchange itself happens outside this service.
type InstallParams struct {
	ShopifyShopID string
	Domain        string
	ShopifyDomain string
	Name          string
	Email         string
	AccessToken   string // plaintext, encrypted before storage
	Scopes        []string
	PlanName      string
}

// ShopService owns shop lifecycle bookkeeping and acts as the credential
// provider: it is the only place tokens are decrypted.
type ShopService interface {
	InstallShop(ctx context.Context, params InstallParams) (*domain.Shop, error)
	UninstallShop(ctx context.Context, id uuid.UUID) error
	GetShop(ctx context.Context, id uuid.UUID) (*domain.Shop, error)
	ListShops(ctx context.Context, activeOnly bool) ([]*domain.Shop, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	// AccessToken returns the decrypted credential for one page fetch. The
	// plaintext is never cached.
	AccessToken(ctx context.Context, shop *domain.Shop) (string, error)
}

type shopService struct {
	shops  repository.ShopRepository
	cipher *crypto.TokenCipher
	logger *zap.Logger
}

// NewShopService creates a new instance of ShopService
func NewShopService(shops repository.ShopRepository, cipher *crypto.TokenCipher, logger *zap.Logger) ShopService {
	return &shopService{shops: shops, cipher: cipher, logger: logger}
}

// InstallShop registers a newly installed shop with its encrypted
// credential. Reinstalling an existing domain refreshes the credential.
func (s *shopService) InstallShop(ctx context.Context, params InstallParams) (*domain.Shop, error) {
	encryptedToken, err := s.cipher.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	now := time.Now().UTC()

	existing, err := s.shops.FindByDomain(ctx, params.ShopifyDomain)
	if err == nil {
		// Reinstall path: refresh credential and reactivate.
		if err := s.shops.UpdateAccessToken(ctx, existing.ID, encryptedToken, params.Scopes); err != nil {
			return nil, fmt.Errorf("failed to refresh credential: %w", err)
		}
		if err := s.shops.SetActive(ctx, existing.ID, true); err != nil {
			return nil, fmt.Errorf("failed to reactivate shop: %w", err)
		}
		s.logger.Info("Shop reinstalled", zap.String("shop_id", existing.ID.String()))
		return s.shops.FindByID(ctx, existing.ID)
	}
	if !errors.Is(err, repository.ErrShopNotFound) {
		return nil, fmt.Errorf("failed to look up shop: %w", err)
	}

	shop := &domain.Shop{
		ID:            uuid.New(),
		ShopifyShopID: params.ShopifyShopID,
		Domain:        params.Domain,
		ShopifyDomain: params.ShopifyDomain,
		Name:          params.Name,
		Email:         params.Email,
		AccessToken:   encryptedToken,
		Scopes:        params.Scopes,
		PlanName:      params.PlanName,
		IsActive:      true,
		InstalledAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.shops.Create(ctx, shop); err != nil {
		return nil, fmt.Errorf("failed to install shop: %w", err)
	}

	s.logger.Info("Shop installed",
		zap.String("shop_id", shop.ID.String()),
		zap.String("shopify_domain", shop.ShopifyDomain),
	)
	return shop, nil
}

// UninstallShop soft-deactivates the shop and wipes its stored credential.
// The row is kept so product history survives.
func (s *shopService) UninstallShop(ctx context.Context, id uuid.UUID) error {
	if err := s.shops.Uninstall(ctx, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to uninstall shop: %w", err)
	}
	s.logger.Info("Shop uninstalled", zap.String("shop_id", id.String()))
	return nil
}

// GetShop retrieves a shop by id
func (s *shopService) GetShop(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	return s.shops.FindByID(ctx, id)
}

// ListShops retrieves all shops
func (s *shopService) ListShops(ctx context.Context, activeOnly bool) ([]*domain.Shop, error) {
	return s.shops.List(ctx, activeOnly)
}

// SetActive toggles a shop's active flag
func (s *shopService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.shops.SetActive(ctx, id, active)
}

// AccessToken decrypts the shop's stored credential. A decrypt failure is
// treated like a revoked credential.
func (s *shopService) AccessToken(ctx context.Context, shop *domain.Shop) (string, error) {
	if !shop.Active() {
		return "", ErrShopInactive
	}
	token, err := s.cipher.Decrypt(shop.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token for shop %s: %w", shop.ID, err)
	}
	return token, nil
}
