package transport

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/middleware"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductResponse represents a synced product
type ProductResponse struct {
	ID          string                `json:"id"`
	ShopifyID   int64                 `json:"shopify_id"`
	Title       string                `json:"title"`
	BodyHTML    string                `json:"body_html,omitempty"`
	Vendor      string                `json:"vendor,omitempty"`
	ProductType string                `json:"product_type,omitempty"`
	Status      string                `json:"status"`
	Handle      string                `json:"handle,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
	Options     []domain.ProductOption `json:"options,omitempty"`
	PublishedAt *time.Time            `json:"published_at,omitempty"`
	SyncedAt    *time.Time            `json:"synced_at,omitempty"`
}

// VariantResponse represents a product variant
type VariantResponse struct {
	ID                string  `json:"id"`
	ShopifyID         int64   `json:"shopify_id"`
	Title             string  `json:"title"`
	Price             float64 `json:"price"`
	CompareAtPrice    float64 `json:"compare_at_price,omitempty"`
	SKU               string  `json:"sku,omitempty"`
	Barcode           string  `json:"barcode,omitempty"`
	Position          int     `json:"position"`
	InventoryQuantity int     `json:"inventory_quantity"`
	InventoryPolicy   string  `json:"inventory_policy,omitempty"`
	Option1           string  `json:"option1,omitempty"`
	Option2           string  `json:"option2,omitempty"`
	Option3           string  `json:"option3,omitempty"`
}

// ImageResponse represents a product image
type ImageResponse struct {
	ID        string `json:"id"`
	ShopifyID int64  `json:"shopify_id"`
	Src       string `json:"src"`
	Position  int    `json:"position"`
	Alt       string `json:"alt,omitempty"`
}

// ProductDetailResponse bundles a product with its children
type ProductDetailResponse struct {
	Product  ProductResponse   `json:"product"`
	Variants []VariantResponse `json:"variants"`
	Images   []ImageResponse   `json:"images"`
}

// ProductHandler handles HTTP requests for browsing synced products
type ProductHandler struct {
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(products repository.ProductRepository, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		logger:   logger,
	}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/shops/{shopID}/products", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.ListProducts)
		r.Get("/{shopifyID}", h.GetProduct)
	})
}

// ListProducts returns a shop's synced products with optional status
// filtering and pagination
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	shopID, err := uuid.Parse(chi.URLParam(r, "shopID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid shop ID")
		return
	}

	status := r.URL.Query().Get("status")
	switch status {
	case "", domain.ProductStatusActive, domain.ProductStatusDraft, domain.ProductStatusArchived:
	default:
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	pageSize := parsePositiveInt(r.URL.Query().Get("page_size"), 20)
	if pageSize > 100 {
		pageSize = 100
	}

	products, total, err := h.products.ListByShop(r.Context(), shopID, status, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list products",
			zap.String("shop_id", shopID.String()),
			zap.Error(err),
		)
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	responses := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		responses = append(responses, toProductResponse(p))
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"products":  responses,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetProduct returns one product with its variants and images
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	shopID, err := uuid.Parse(chi.URLParam(r, "shopID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid shop ID")
		return
	}

	shopifyID, err := strconv.ParseInt(chi.URLParam(r, "shopifyID"), 10, 64)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	product, err := h.products.FindByShopifyID(r.Context(), shopID, shopifyID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Error("Failed to get product", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	variants, err := h.products.ListVariants(r.Context(), product.ID)
	if err != nil {
		h.logger.Error("Failed to list variants", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	images, err := h.products.ListImages(r.Context(), product.ID)
	if err != nil {
		h.logger.Error("Failed to list images", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	detail := ProductDetailResponse{
		Product:  toProductResponse(product),
		Variants: make([]VariantResponse, 0, len(variants)),
		Images:   make([]ImageResponse, 0, len(images)),
	}
	for _, v := range variants {
		detail.Variants = append(detail.Variants, toVariantResponse(v))
	}
	for _, img := range images {
		detail.Images = append(detail.Images, toImageResponse(img))
	}

	middleware.RespondWithJSON(w, http.StatusOK, detail)
}

func parsePositiveInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func toProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID.String(),
		ShopifyID:   p.ShopifyID,
		Title:       p.Title,
		BodyHTML:    p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Status:      p.Status,
		Handle:      p.Handle,
		Tags:        p.Tags,
		Options:     p.Options,
		PublishedAt: p.PublishedAt,
		SyncedAt:    p.SyncedAt,
	}
}

func toVariantResponse(v *domain.Variant) VariantResponse {
	return VariantResponse{
		ID:                v.ID.String(),
		ShopifyID:         v.ShopifyID,
		Title:             v.Title,
		Price:             v.Price,
		CompareAtPrice:    v.CompareAtPrice,
		SKU:               v.SKU,
		Barcode:           v.Barcode,
		Position:          v.Position,
		InventoryQuantity: v.InventoryQuantity,
		InventoryPolicy:   v.InventoryPolicy,
		Option1:           v.Option1,
		Option2:           v.Option2,
		Option3:           v.Option3,
	}
}

func toImageResponse(img *domain.Image) ImageResponse {
	return ImageResponse{
		ID:        img.ID.String(),
		ShopifyID: img.ShopifyID,
		Src:       img.Src,
		Position:  img.Position,
		Alt:       img.Alt,
	}
}
