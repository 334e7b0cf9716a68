package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrShopNotFound      = errors.New("shop not found")
	ErrShopAlreadyExists = errors.New("shop already exists")
)

const uniqueViolationCode = "23505"

// ShopRepository defines the interface for shop data access. Sync-status
// fields are mutated only through the Mark* and checkpoint methods.
type ShopRepository interface {
	Create(ctx context.Context, shop *domain.Shop) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Shop, error)
	FindByDomain(ctx context.Context, shopifyDomain string) (*domain.Shop, error)
	List(ctx context.Context, activeOnly bool) ([]*domain.Shop, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Uninstall(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateAccessToken(ctx context.Context, id uuid.UUID, encryptedToken string, scopes []string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, profile domain.ShopProfile) error
	UpdateSyncCheckpoint(ctx context.Context, id uuid.UUID, page int, sinceID int64) error
	MarkSyncSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkSyncFailure(ctx context.Context, id uuid.UUID, at time.Time, message string) error
}

type shopRepository struct {
	db *sql.DB
}

// NewShopRepository creates a new instance of ShopRepository
func NewShopRepository(db *sql.DB) ShopRepository {
	return &shopRepository{db: db}
}

const shopColumns = `
	id, shopify_shop_id, domain, shopify_domain, name, email, access_token,
	scopes, plan_name, is_active, installed_at, uninstalled_at,
	last_synced_at, last_sync_failed_at, last_sync_error,
	last_sync_page, last_since_id, meta, created_at, updated_at
`

// Create inserts a new shop using parameterized queries
func (r *shopRepository) Create(ctx context.Context, shop *domain.Shop) error {
	query := `
		INSERT INTO shops (
			id, shopify_shop_id, domain, shopify_domain, name, email, access_token,
			scopes, plan_name, is_active, installed_at, meta, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	scopes, err := json.Marshal(shop.Scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	_, err = r.db.ExecContext(
		ctx,
		query,
		shop.ID,
		shop.ShopifyShopID,
		shop.Domain,
		shop.ShopifyDomain,
		shop.Name,
		shop.Email,
		shop.AccessToken,
		scopes,
		shop.PlanName,
		shop.IsActive,
		shop.InstalledAt,
		nullableJSON(shop.Meta),
		shop.CreatedAt,
		shop.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrShopAlreadyExists
		}
		return fmt.Errorf("failed to create shop: %w", err)
	}

	return nil
}

// FindByID retrieves a shop by its internal id
func (r *shopRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Shop, error) {
	query := fmt.Sprintf(`SELECT %s FROM shops WHERE id = $1`, shopColumns)
	return r.scanShop(r.db.QueryRowContext(ctx, query, id))
}

// FindByDomain retrieves a shop by its myshopify domain
func (r *shopRepository) FindByDomain(ctx context.Context, shopifyDomain string) (*domain.Shop, error) {
	query := fmt.Sprintf(`SELECT %s FROM shops WHERE shopify_domain = $1`, shopColumns)
	return r.scanShop(r.db.QueryRowContext(ctx, query, shopifyDomain))
}

// List retrieves all shops, optionally only the installed active ones
func (r *shopRepository) List(ctx context.Context, activeOnly bool) ([]*domain.Shop, error) {
	query := fmt.Sprintf(`SELECT %s FROM shops`, shopColumns)
	if activeOnly {
		query += ` WHERE is_active = TRUE AND installed_at IS NOT NULL AND uninstalled_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer rows.Close()

	shops := []*domain.Shop{}
	for rows.Next() {
		shop, err := r.scanShop(rows)
		if err != nil {
			return nil, err
		}
		shops = append(shops, shop)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shops: %w", err)
	}

	return shops, nil
}

// SetActive toggles the shop's active flag. Activating also clears the
// uninstall marker so a reinstalled shop becomes syncable again.
func (r *shopRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `
		UPDATE shops
		SET is_active = $2,
		    uninstalled_at = CASE WHEN $2 THEN NULL ELSE uninstalled_at END,
		    installed_at = CASE WHEN $2 THEN COALESCE(installed_at, NOW()) ELSE installed_at END,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.execExpectingRow(ctx, query, id, active)
}

// Uninstall marks the shop uninstalled and deactivates it. The row is kept
// so sync history survives a reinstall.
func (r *shopRepository) Uninstall(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE shops
		SET is_active = FALSE, uninstalled_at = $2, access_token = '', updated_at = NOW()
		WHERE id = $1
	`
	return r.execExpectingRow(ctx, query, id, at)
}

// UpdateAccessToken stores a fresh encrypted credential and granted scopes
func (r *shopRepository) UpdateAccessToken(ctx context.Context, id uuid.UUID, encryptedToken string, scopes []string) error {
	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return fmt.Errorf("failed to marshal scopes: %w", err)
	}

	query := `UPDATE shops SET access_token = $2, scopes = $3, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, encryptedToken, scopesJSON)
}

// UpdateProfile stores the shop fields refreshed from shop.json. A domain
// change that collides with another shop surfaces as ErrShopAlreadyExists.
func (r *shopRepository) UpdateProfile(ctx context.Context, id uuid.UUID, profile domain.ShopProfile) error {
	query := `
		UPDATE shops
		SET name = $2, email = $3, domain = $4, shopify_domain = $5, plan_name = $6, updated_at = NOW()
		WHERE id = $1
	`
	err := r.execExpectingRow(ctx, query, id, profile.Name, profile.Email, profile.Domain, profile.ShopifyDomain, profile.PlanName)
	if err != nil && isUniqueViolation(err) {
		return ErrShopAlreadyExists
	}
	return err
}

// UpdateSyncCheckpoint records how far the sync chain got, so a lost
// continuation message can be diagnosed and resumed
func (r *shopRepository) UpdateSyncCheckpoint(ctx context.Context, id uuid.UUID, page int, sinceID int64) error {
	query := `UPDATE shops SET last_sync_page = $2, last_since_id = $3, updated_at = NOW() WHERE id = $1`
	return r.execExpectingRow(ctx, query, id, page, sinceID)
}

// MarkSyncSuccess records a successful sync and clears the error fields
func (r *shopRepository) MarkSyncSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE shops
		SET last_synced_at = $2, last_sync_failed_at = NULL, last_sync_error = '', updated_at = NOW()
		WHERE id = $1
	`
	return r.execExpectingRow(ctx, query, id, at)
}

// MarkSyncFailure records a terminal sync failure for operator inspection
func (r *shopRepository) MarkSyncFailure(ctx context.Context, id uuid.UUID, at time.Time, message string) error {
	query := `
		UPDATE shops
		SET last_sync_failed_at = $2, last_sync_error = $3, updated_at = NOW()
		WHERE id = $1
	`
	return r.execExpectingRow(ctx, query, id, at, message)
}

func (r *shopRepository) execExpectingRow(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update shop: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrShopNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *shopRepository) scanShop(row rowScanner) (*domain.Shop, error) {
	shop := &domain.Shop{}
	var (
		scopes        []byte
		meta          []byte
		lastSyncError sql.NullString
	)

	err := row.Scan(
		&shop.ID,
		&shop.ShopifyShopID,
		&shop.Domain,
		&shop.ShopifyDomain,
		&shop.Name,
		&shop.Email,
		&shop.AccessToken,
		&scopes,
		&shop.PlanName,
		&shop.IsActive,
		&shop.InstalledAt,
		&shop.UninstalledAt,
		&shop.LastSyncedAt,
		&shop.LastSyncFailedAt,
		&lastSyncError,
		&shop.LastSyncPage,
		&shop.LastSinceID,
		&meta,
		&shop.CreatedAt,
		&shop.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrShopNotFound
		}
		return nil, fmt.Errorf("failed to scan shop: %w", err)
	}

	if len(scopes) > 0 {
		if err := json.Unmarshal(scopes, &shop.Scopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scopes: %w", err)
		}
	}
	if len(meta) > 0 {
		shop.Meta = json.RawMessage(meta)
	}
	shop.LastSyncError = lastSyncError.String

	return shop, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
