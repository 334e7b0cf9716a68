package shopify

import (
	"encoding/json"
	"strings"
)

// TagList accepts both wire encodings Shopify has used for tags: a single
// comma separated string and a JSON array of strings.
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = splitTags(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*t = list
	return nil
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// RawProduct is one product record as returned by the Shopify Admin REST
// API. Legacy field aliases (description, type, url) are kept so the
// translator can resolve them in one place.
type RawProduct struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	BodyHTML    string       `json:"body_html"`
	Description string       `json:"description"`
	Vendor      string       `json:"vendor"`
	ProductType string       `json:"product_type"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	Handle      string       `json:"handle"`
	Tags        TagList      `json:"tags"`
	PublishedAt *string      `json:"published_at"`
	Variants    []RawVariant `json:"variants"`
	Images      []RawImage   `json:"images"`
	Options     []RawOption  `json:"options"`

	// Raw is the untouched payload for this record, stored alongside the
	// normalized row for forward compatibility.
	Raw json.RawMessage `json:"-"`
}

type RawVariant struct {
	ID                  int64           `json:"id"`
	Title               string          `json:"title"`
	Price               string          `json:"price"`
	CompareAtPrice      string          `json:"compare_at_price"`
	SKU                 string          `json:"sku"`
	Barcode             string          `json:"barcode"`
	Position            int             `json:"position"`
	InventoryQuantity   int             `json:"inventory_quantity"`
	InventoryPolicy     string          `json:"inventory_policy"`
	InventoryManagement string          `json:"inventory_management"`
	FulfillmentService  string          `json:"fulfillment_service"`
	Weight              float64         `json:"weight"`
	WeightUnit          string          `json:"weight_unit"`
	Option1             string          `json:"option1"`
	Option2             string          `json:"option2"`
	Option3             string          `json:"option3"`
	Raw                 json.RawMessage `json:"-"`
}

type RawImage struct {
	ID       int64           `json:"id"`
	Src      string          `json:"src"`
	URL      string          `json:"url"`
	Position int             `json:"position"`
	Alt      string          `json:"alt"`
	Raw      json.RawMessage `json:"-"`
}

type RawOption struct {
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Values   []string `json:"values"`
}

// RawShop is the shop profile record from shop.json. Only the fields the
// refresh job stores are decoded.
type RawShop struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Domain          string `json:"domain"`
	MyshopifyDomain string `json:"myshopify_domain"`
	PlanName        string `json:"plan_name"`
}
