package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/lock"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	syncpkg "github.com/Matlecks/TDD-SOLID-integration-shopify/internal/sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingEnqueuer struct {
	jobs   []syncpkg.PageJob
	delays []time.Duration
	err    error
}

func (m *recordingEnqueuer) Enqueue(ctx context.Context, payload interface{}, delay time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, payload.(syncpkg.PageJob))
	m.delays = append(m.delays, delay)
	return nil
}

type fakeLeaser struct {
	held   map[uuid.UUID]bool
	tokens int
	err    error
}

func newFakeLeaser() *fakeLeaser {
	return &fakeLeaser{held: make(map[uuid.UUID]bool)}
}

func (m *fakeLeaser) Acquire(ctx context.Context, shopID uuid.UUID, ttl time.Duration) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.held[shopID] {
		return "", lock.ErrNotAcquired
	}
	m.held[shopID] = true
	m.tokens++
	return uuid.New().String(), nil
}

func activeShop() *domain.Shop {
	now := time.Now().UTC()
	return &domain.Shop{
		ID:            uuid.New(),
		ShopifyDomain: "demo.myshopify.com",
		IsActive:      true,
		InstalledAt:   &now,
	}
}

func newSyncFixture(shops ...*domain.Shop) (SyncService, *mockShopRepo, *recordingEnqueuer, *fakeLeaser) {
	repo := newMockShopRepo(shops...)
	enqueuer := &recordingEnqueuer{}
	leaser := newFakeLeaser()
	svc := NewSyncService(repo, enqueuer, leaser, zap.NewNop(), SyncConfig{
		PageLimit: 50,
		LeaseTTL:  time.Minute,
	})
	return svc, repo, enqueuer, leaser
}

func TestStartSync_EnqueuesFirstPage(t *testing.T) {
	shop := activeShop()
	svc, _, enqueuer, _ := newSyncFixture(shop)

	require.NoError(t, svc.StartSync(context.Background(), shop.ID))

	require.Len(t, enqueuer.jobs, 1)
	job := enqueuer.jobs[0]
	assert.Equal(t, shop.ID, job.ShopID)
	assert.Equal(t, 1, job.Page)
	assert.Equal(t, int64(0), job.SinceID)
	assert.Equal(t, 50, job.Limit)
	assert.NotEmpty(t, job.LeaseToken)
	// The first page runs as soon as a worker is free
	assert.Equal(t, time.Duration(0), enqueuer.delays[0])
}

func TestStartSync_UnknownShop(t *testing.T) {
	svc, _, enqueuer, _ := newSyncFixture()

	err := svc.StartSync(context.Background(), uuid.New())

	assert.ErrorIs(t, err, repository.ErrShopNotFound)
	assert.Empty(t, enqueuer.jobs)
}

func TestStartSync_InactiveShop(t *testing.T) {
	shop := activeShop()
	shop.IsActive = false
	svc, _, enqueuer, leaser := newSyncFixture(shop)

	err := svc.StartSync(context.Background(), shop.ID)

	assert.ErrorIs(t, err, ErrShopInactive)
	assert.Empty(t, enqueuer.jobs)
	assert.Equal(t, 0, leaser.tokens)
}

func TestStartSync_UninstalledShopIsInactive(t *testing.T) {
	shop := activeShop()
	gone := time.Now().UTC()
	shop.UninstalledAt = &gone
	svc, _, _, _ := newSyncFixture(shop)

	err := svc.StartSync(context.Background(), shop.ID)

	assert.ErrorIs(t, err, ErrShopInactive)
}

func TestStartSync_LeaseHeldMeansSyncInProgress(t *testing.T) {
	shop := activeShop()
	svc, _, enqueuer, _ := newSyncFixture(shop)

	require.NoError(t, svc.StartSync(context.Background(), shop.ID))
	err := svc.StartSync(context.Background(), shop.ID)

	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Len(t, enqueuer.jobs, 1, "the duplicate trigger must not enqueue")
}

func TestStartSync_EnqueueFailureSurfaces(t *testing.T) {
	shop := activeShop()
	svc, _, enqueuer, _ := newSyncFixture(shop)
	enqueuer.err = errors.New("redis down")

	err := svc.StartSync(context.Background(), shop.ID)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSyncInProgress)
}

func TestSyncAllShops_StartsOnlyActiveShops(t *testing.T) {
	active1 := activeShop()
	active2 := activeShop()
	inactive := activeShop()
	inactive.IsActive = false

	svc, _, enqueuer, _ := newSyncFixture(active1, active2, inactive)

	started, err := svc.SyncAllShops(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, started)
	assert.Len(t, enqueuer.jobs, 2)
}

func TestSyncAllShops_SkipsShopsWithRunningSync(t *testing.T) {
	shop1 := activeShop()
	shop2 := activeShop()
	svc, _, enqueuer, leaser := newSyncFixture(shop1, shop2)
	leaser.held[shop1.ID] = true

	started, err := svc.SyncAllShops(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, started)
	require.Len(t, enqueuer.jobs, 1)
	assert.Equal(t, shop2.ID, enqueuer.jobs[0].ShopID)
}
