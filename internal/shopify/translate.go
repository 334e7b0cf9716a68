package shopify

import (
	"strconv"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"
)

// Platform defaults applied when Shopify omits a field. All alias and
// default resolution lives here so the reconciler stays schema-agnostic.
const (
	defaultStatus              = domain.ProductStatusDraft
	defaultWeightUnit          = "kg"
	defaultInventoryPolicy     = "deny"
	defaultInventoryManagement = "shopify"
	defaultFulfillmentService  = "manual"
)

// TranslateProduct converts one raw Shopify record into a normalized
// product aggregate. It is a pure function: no I/O, no side effects, and
// the same input always yields the same aggregate. A record with zero
// variants or images is valid.
func TranslateProduct(raw RawProduct) domain.ProductAggregate {
	product := domain.Product{
		ShopifyID:   raw.ID,
		Title:       raw.Title,
		BodyHTML:    coalesce(raw.BodyHTML, raw.Description),
		Vendor:      raw.Vendor,
		ProductType: coalesce(raw.ProductType, raw.Type),
		Status:      coalesce(raw.Status, defaultStatus),
		Handle:      raw.Handle,
		Tags:        raw.Tags,
		Options:     translateOptions(raw.Options),
		PublishedAt: parseTime(raw.PublishedAt),
		ShopifyData: raw.Raw,
	}

	variants := make([]domain.Variant, 0, len(raw.Variants))
	for _, v := range raw.Variants {
		variants = append(variants, translateVariant(v))
	}

	images := make([]domain.Image, 0, len(raw.Images))
	for _, img := range raw.Images {
		images = append(images, domain.Image{
			ShopifyID:   img.ID,
			Src:         coalesce(img.Src, img.URL),
			Position:    img.Position,
			Alt:         img.Alt,
			ShopifyData: img.Raw,
		})
	}

	return domain.ProductAggregate{
		Product:  product,
		Variants: variants,
		Images:   images,
	}
}

func translateVariant(v RawVariant) domain.Variant {
	return domain.Variant{
		ShopifyID:           v.ID,
		Title:               v.Title,
		Price:               parsePrice(v.Price),
		CompareAtPrice:      parsePrice(v.CompareAtPrice),
		SKU:                 v.SKU,
		Barcode:             v.Barcode,
		Position:            v.Position,
		InventoryQuantity:   v.InventoryQuantity,
		InventoryPolicy:     coalesce(v.InventoryPolicy, defaultInventoryPolicy),
		InventoryManagement: coalesce(v.InventoryManagement, defaultInventoryManagement),
		FulfillmentService:  coalesce(v.FulfillmentService, defaultFulfillmentService),
		Weight:              v.Weight,
		WeightUnit:          coalesce(v.WeightUnit, defaultWeightUnit),
		Option1:             v.Option1,
		Option2:             v.Option2,
		Option3:             v.Option3,
		ShopifyData:         v.Raw,
	}
}

func translateOptions(options []RawOption) []domain.ProductOption {
	if len(options) == 0 {
		return nil
	}
	out := make([]domain.ProductOption, 0, len(options))
	for _, o := range options {
		out = append(out, domain.ProductOption{
			Name:     o.Name,
			Position: o.Position,
			Values:   o.Values,
		})
	}
	return out
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parsePrice parses Shopify's decimal-as-string prices. Unparseable or
// absent prices become 0.
func parsePrice(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}
