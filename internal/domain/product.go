package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Product lifecycle statuses as reported by Shopify
const (
	ProductStatusActive   = "active"
	ProductStatusDraft    = "draft"
	ProductStatusArchived = "archived"
)

// Product represents one Shopify catalog item scoped to a shop.
// (ShopID, ShopifyID) is the idempotency key for sync upserts.
type Product struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	ShopID      uuid.UUID       `json:"shop_id" db:"shop_id"`
	ShopifyID   int64           `json:"shopify_id" db:"shopify_id"`
	Title       string          `json:"title" db:"title"`
	BodyHTML    string          `json:"body_html" db:"body_html"`
	Vendor      string          `json:"vendor" db:"vendor"`
	ProductType string          `json:"product_type" db:"product_type"`
	Status      string          `json:"status" db:"status"`
	Handle      string          `json:"handle" db:"handle"`
	Tags        []string        `json:"tags" db:"tags"`
	Options     []ProductOption `json:"options" db:"options"`
	PublishedAt *time.Time      `json:"published_at" db:"published_at"`
	ShopifyData json.RawMessage `json:"shopify_data,omitempty" db:"shopify_data"`
	SyncedAt    *time.Time      `json:"synced_at" db:"synced_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Variant is a purchasable variation of a product. Variants are replaced
// wholesale on every sync pass, they are never edited locally.
type Variant struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	ProductID           uuid.UUID       `json:"product_id" db:"product_id"`
	ShopifyID           int64           `json:"shopify_id" db:"shopify_id"`
	Title               string          `json:"title" db:"title"`
	Price               float64         `json:"price" db:"price"`
	CompareAtPrice      float64         `json:"compare_at_price" db:"compare_at_price"`
	SKU                 string          `json:"sku" db:"sku"`
	Barcode             string          `json:"barcode" db:"barcode"`
	Position            int             `json:"position" db:"position"`
	InventoryQuantity   int             `json:"inventory_quantity" db:"inventory_quantity"`
	InventoryPolicy     string          `json:"inventory_policy" db:"inventory_policy"`
	InventoryManagement string          `json:"inventory_management" db:"inventory_management"`
	FulfillmentService  string          `json:"fulfillment_service" db:"fulfillment_service"`
	Weight              float64         `json:"weight" db:"weight"`
	WeightUnit          string          `json:"weight_unit" db:"weight_unit"`
	Option1             string          `json:"option1" db:"option1"`
	Option2             string          `json:"option2" db:"option2"`
	Option3             string          `json:"option3" db:"option3"`
	ShopifyData         json.RawMessage `json:"shopify_data,omitempty" db:"shopify_data"`
}

// Image is a product image, same replace-wholesale lifecycle as Variant.
type Image struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	ShopifyID   int64           `json:"shopify_id" db:"shopify_id"`
	Src         string          `json:"src" db:"src"`
	Position    int             `json:"position" db:"position"`
	Alt         string          `json:"alt" db:"alt"`
	ShopifyData json.RawMessage `json:"shopify_data,omitempty" db:"shopify_data"`
}

// ProductOption describes one option axis (e.g. Size) and its values.
// Options are stored denormalized on the product row.
type ProductOption struct {
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Values   []string `json:"values"`
}

// ProductAggregate is a normalized product together with its children, as
// produced by the page translator and consumed by the reconciler.
type ProductAggregate struct {
	Product  Product   `json:"product"`
	Variants []Variant `json:"variants"`
	Images   []Image   `json:"images"`
}
