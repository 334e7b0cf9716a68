package service

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/crypto"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock shop repository shared by the service tests

type mockShopRepo struct {
	shops map[uuid.UUID]*domain.Shop
}

func newMockShopRepo(shops ...*domain.Shop) *mockShopRepo {
	m := &mockShopRepo{shops: make(map[uuid.UUID]*domain.Shop)}
	for _, s := range shops {
		m.shops[s.ID] = s
	}
	return m
}

func (m *mockShopRepo) Create(ctx context.Context, shop *domain.Shop) error {
	for _, existing := range m.shops {
		if existing.ShopifyDomain == shop.ShopifyDomain || existing.ShopifyShopID == shop.ShopifyShopID {
			return repository.ErrShopAlreadyExists
		}
	}
	m.shops[shop.ID] = shop
	return nil
}

func (m *mockShopRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	shop, ok := m.shops[id]
	if !ok {
		return nil, repository.ErrShopNotFound
	}
	return shop, nil
}

func (m *mockShopRepo) FindByDomain(ctx context.Context, shopifyDomain string) (*domain.Shop, error) {
	for _, shop := range m.shops {
		if shop.ShopifyDomain == shopifyDomain {
			return shop, nil
		}
	}
	return nil, repository.ErrShopNotFound
}

func (m *mockShopRepo) List(ctx context.Context, activeOnly bool) ([]*domain.Shop, error) {
	out := []*domain.Shop{}
	for _, shop := range m.shops {
		if activeOnly && !shop.Active() {
			continue
		}
		out = append(out, shop)
	}
	return out, nil
}

func (m *mockShopRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	shop, ok := m.shops[id]
	if !ok {
		return repository.ErrShopNotFound
	}
	shop.IsActive = active
	if active {
		shop.UninstalledAt = nil
		if shop.InstalledAt == nil {
			now := time.Now().UTC()
			shop.InstalledAt = &now
		}
	}
	return nil
}

func (m *mockShopRepo) Uninstall(ctx context.Context, id uuid.UUID, at time.Time) error {
	shop, ok := m.shops[id]
	if !ok {
		return repository.ErrShopNotFound
	}
	shop.IsActive = false
	shop.UninstalledAt = &at
	shop.AccessToken = ""
	return nil
}

func (m *mockShopRepo) UpdateAccessToken(ctx context.Context, id uuid.UUID, encryptedToken string, scopes []string) error {
	shop, ok := m.shops[id]
	if !ok {
		return repository.ErrShopNotFound
	}
	shop.AccessToken = encryptedToken
	shop.Scopes = scopes
	return nil
}

func (m *mockShopRepo) UpdateProfile(ctx context.Context, id uuid.UUID, profile domain.ShopProfile) error {
	shop, ok := m.shops[id]
	if !ok {
		return repository.ErrShopNotFound
	}
	shop.Name = profile.Name
	shop.Email = profile.Email
	shop.Domain = profile.Domain
	shop.ShopifyDomain = profile.ShopifyDomain
	shop.PlanName = profile.PlanName
	return nil
}

func (m *mockShopRepo) UpdateSyncCheckpoint(ctx context.Context, id uuid.UUID, page int, sinceID int64) error {
	shop, ok := m.shops[id]
	if !ok {
		return repository.ErrShopNotFound
	}
	shop.LastSyncPage = page
	shop.LastSinceID = sinceID
	return nil
}

func (m *mockShopRepo) MarkSyncSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	shop, ok := m.shops[id]
	if !ok {
		return repository.ErrShopNotFound
	}
	shop.LastSyncedAt = &at
	shop.LastSyncFailedAt = nil
	shop.LastSyncError = ""
	return nil
}

func (m *mockShopRepo) MarkSyncFailure(ctx context.Context, id uuid.UUID, at time.Time, message string) error {
	shop, ok := m.shops[id]
	if !ok {
		return repository.ErrShopNotFound
	}
	shop.LastSyncFailedAt = &at
	shop.LastSyncError = message
	return nil
}

func testCipher(t *testing.T) *crypto.TokenCipher {
	t.Helper()
	key := make([]byte, crypto.KeyLen)
	_, err := rand.Read(key)
	require.NoError(t, err)
	cipher, err := crypto.NewTokenCipher(key)
	require.NoError(t, err)
	return cipher
}

func installParams() InstallParams {
	return InstallParams{
		ShopifyShopID: "9001",
		Domain:        "demo-store.com",
		ShopifyDomain: "demo-store.myshopify.com",
		Name:          "Demo Store",
		Email:         "owner@demo-store.com",
		AccessToken:   "shpat_plaintext_token",
		Scopes:        []string{"read_products"},
		PlanName:      "basic",
	}
}

func TestInstallShop_EncryptsTokenAtRest(t *testing.T) {
	repo := newMockShopRepo()
	cipher := testCipher(t)
	svc := NewShopService(repo, cipher, zap.NewNop())

	shop, err := svc.InstallShop(context.Background(), installParams())
	require.NoError(t, err)

	assert.True(t, shop.Active())
	assert.NotEmpty(t, shop.AccessToken)
	assert.NotEqual(t, "shpat_plaintext_token", shop.AccessToken, "token must never be stored in the clear")

	// The stored ciphertext opens back to the original
	plaintext, err := cipher.Decrypt(shop.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "shpat_plaintext_token", plaintext)
}

func TestInstallShop_ReinstallRefreshesCredential(t *testing.T) {
	repo := newMockShopRepo()
	cipher := testCipher(t)
	svc := NewShopService(repo, cipher, zap.NewNop())
	ctx := context.Background()

	first, err := svc.InstallShop(ctx, installParams())
	require.NoError(t, err)
	require.NoError(t, svc.UninstallShop(ctx, first.ID))

	params := installParams()
	params.AccessToken = "shpat_fresh_token"
	second, err := svc.InstallShop(ctx, params)
	require.NoError(t, err)

	// Same row, fresh credential, active again
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsActive)
	plaintext, err := cipher.Decrypt(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "shpat_fresh_token", plaintext)
}

func TestInstallShop_DuplicateShopifyShopIDRejected(t *testing.T) {
	repo := newMockShopRepo()
	svc := NewShopService(repo, testCipher(t), zap.NewNop())
	ctx := context.Background()

	_, err := svc.InstallShop(ctx, installParams())
	require.NoError(t, err)

	// A second install for the same Shopify store under a new domain must
	// not create a second row
	params := installParams()
	params.Domain = "demo-store-relaunch.com"
	params.ShopifyDomain = "demo-store-relaunch.myshopify.com"

	_, err = svc.InstallShop(ctx, params)
	assert.ErrorIs(t, err, repository.ErrShopAlreadyExists)
}

func TestUninstallShop_WipesCredentialKeepsRow(t *testing.T) {
	repo := newMockShopRepo()
	svc := NewShopService(repo, testCipher(t), zap.NewNop())
	ctx := context.Background()

	shop, err := svc.InstallShop(ctx, installParams())
	require.NoError(t, err)

	require.NoError(t, svc.UninstallShop(ctx, shop.ID))

	kept, err := svc.GetShop(ctx, shop.ID)
	require.NoError(t, err)
	assert.False(t, kept.Active())
	assert.Empty(t, kept.AccessToken)
	assert.NotNil(t, kept.UninstalledAt)
}

func TestAccessToken_DecryptsForActiveShop(t *testing.T) {
	repo := newMockShopRepo()
	svc := NewShopService(repo, testCipher(t), zap.NewNop())
	ctx := context.Background()

	shop, err := svc.InstallShop(ctx, installParams())
	require.NoError(t, err)

	token, err := svc.AccessToken(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, "shpat_plaintext_token", token)
}

func TestAccessToken_RefusesInactiveShop(t *testing.T) {
	repo := newMockShopRepo()
	svc := NewShopService(repo, testCipher(t), zap.NewNop())
	ctx := context.Background()

	shop, err := svc.InstallShop(ctx, installParams())
	require.NoError(t, err)
	require.NoError(t, svc.UninstallShop(ctx, shop.ID))

	fetched, err := svc.GetShop(ctx, shop.ID)
	require.NoError(t, err)

	_, err = svc.AccessToken(ctx, fetched)
	assert.ErrorIs(t, err, ErrShopInactive)
}

func TestAccessToken_CorruptCiphertextFails(t *testing.T) {
	repo := newMockShopRepo()
	svc := NewShopService(repo, testCipher(t), zap.NewNop())
	ctx := context.Background()

	shop, err := svc.InstallShop(ctx, installParams())
	require.NoError(t, err)
	shop.AccessToken = "garbage"

	_, err = svc.AccessToken(ctx, shop)
	assert.Error(t, err)
}
