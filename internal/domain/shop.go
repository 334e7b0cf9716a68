package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Shop represents a connected Shopify store (one tenant)
type Shop struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ShopifyShopID string    `json:"shopify_shop_id" db:"shopify_shop_id"`
	Domain        string    `json:"domain" db:"domain"`
	ShopifyDomain string    `json:"shopify_domain" db:"shopify_domain"`
	Name          string    `json:"name" db:"name"`
	Email         string    `json:"email" db:"email"`
	// AccessToken holds the encrypted Shopify access token. It is decrypted
	// only through the shop service, never read directly.
	AccessToken string   `json:"-" db:"access_token"`
	Scopes      []string `json:"scopes" db:"scopes"`
	PlanName    string   `json:"plan_name" db:"plan_name"`
	IsActive    bool     `json:"is_active" db:"is_active"`

	InstalledAt   *time.Time `json:"installed_at" db:"installed_at"`
	UninstalledAt *time.Time `json:"uninstalled_at" db:"uninstalled_at"`

	// Sync status fields, written only at terminal sync transitions
	LastSyncedAt     *time.Time `json:"last_synced_at" db:"last_synced_at"`
	LastSyncFailedAt *time.Time `json:"last_sync_failed_at" db:"last_sync_failed_at"`
	LastSyncError    string     `json:"last_sync_error" db:"last_sync_error"`

	// Pagination checkpoint, written after every successfully processed page
	// so a lost continuation can be diagnosed and resumed
	LastSyncPage int   `json:"last_sync_page" db:"last_sync_page"`
	LastSinceID  int64 `json:"last_since_id" db:"last_since_id"`

	Meta      json.RawMessage `json:"meta,omitempty" db:"meta"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Active reports whether the shop is installed and not deactivated.
// Syncs must not run against inactive shops.
func (s *Shop) Active() bool {
	return s.IsActive && s.InstalledAt != nil && s.UninstalledAt == nil
}

// ShopProfile is the subset of shop fields periodically refreshed from the
// Shopify shop.json endpoint.
type ShopProfile struct {
	Name          string
	Email         string
	Domain        string
	ShopifyDomain string
	PlanName      string
}
