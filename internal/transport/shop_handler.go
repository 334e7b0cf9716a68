package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/domain"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/middleware"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InstallShopRequest represents the shop install payload. The OAuth
// exchange happens upstream; this endpoint records its result.
type InstallShopRequest struct {
	ShopifyShopID string   `json:"shopify_shop_id" validate:"required"`
	Domain        string   `json:"domain" validate:"required"`
	ShopifyDomain string   `json:"shopify_domain" validate:"required,hostname"`
	Name          string   `json:"name" validate:"required"`
	Email         string   `json:"email" validate:"required,email"`
	AccessToken   string   `json:"access_token" validate:"required"`
	Scopes        []string `json:"scopes"`
	PlanName      string   `json:"plan_name"`
}

// SetActiveRequest toggles a shop's active flag
type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// ShopResponse represents shop data returned to operators. The stored
// credential is never part of it.
type ShopResponse struct {
	ID               string     `json:"id"`
	ShopifyShopID    string     `json:"shopify_shop_id"`
	Domain           string     `json:"domain"`
	ShopifyDomain    string     `json:"shopify_domain"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PlanName         string     `json:"plan_name,omitempty"`
	IsActive         bool       `json:"is_active"`
	InstalledAt      *time.Time `json:"installed_at,omitempty"`
	UninstalledAt    *time.Time `json:"uninstalled_at,omitempty"`
	LastSyncedAt     *time.Time `json:"last_synced_at,omitempty"`
	LastSyncFailedAt *time.Time `json:"last_sync_failed_at,omitempty"`
	LastSyncError    string     `json:"last_sync_error,omitempty"`
	LastSyncPage     int        `json:"last_sync_page"`
	LastSinceID      int64      `json:"last_since_id"`
}

// ShopHandler handles HTTP requests for shop lifecycle operations
type ShopHandler struct {
	shopService service.ShopService
	logger      *zap.Logger
}

// NewShopHandler creates a new ShopHandler
func NewShopHandler(shopService service.ShopService, logger *zap.Logger) *ShopHandler {
	return &ShopHandler{
		shopService: shopService,
		logger:      logger,
	}
}

// RegisterRoutes registers all shop routes
func (h *ShopHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/shops", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Get("/", h.ListShops)
		r.Get("/{shopID}", h.GetShop)

		// Mutating routes
		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Post("/", h.InstallShop)
			r.Delete("/{shopID}", h.UninstallShop)
			r.Patch("/{shopID}/active", h.SetActive)
		})
	})
}

// InstallShop records a newly installed shop
func (h *ShopHandler) InstallShop(w http.ResponseWriter, r *http.Request) {
	var req InstallShopRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Install validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	shop, err := h.shopService.InstallShop(r.Context(), service.InstallParams{
		ShopifyShopID: req.ShopifyShopID,
		Domain:        req.Domain,
		ShopifyDomain: req.ShopifyDomain,
		Name:          req.Name,
		Email:         req.Email,
		AccessToken:   req.AccessToken,
		Scopes:        req.Scopes,
		PlanName:      req.PlanName,
	})
	if err != nil {
		h.logger.Error("Install failed", zap.Error(err))

		if errors.Is(err, repository.ErrShopAlreadyExists) {
			middleware.RespondWithError(w, http.StatusConflict, "shop with this domain already exists")
			return
		}

		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to install shop")
		return
	}

	h.logger.Info("Shop installed", zap.String("shop_id", shop.ID.String()))
	middleware.RespondWithJSON(w, http.StatusCreated, toShopResponse(shop))
}

// UninstallShop deactivates a shop and wipes its credential
func (h *ShopHandler) UninstallShop(w http.ResponseWriter, r *http.Request) {
	shopID, ok := h.parseShopID(w, r)
	if !ok {
		return
	}

	if err := h.shopService.UninstallShop(r.Context(), shopID); err != nil {
		if errors.Is(err, repository.ErrShopNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "shop not found")
			return
		}
		h.logger.Error("Uninstall failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to uninstall shop")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "uninstalled"})
}

// GetShop returns one shop with its sync status fields
func (h *ShopHandler) GetShop(w http.ResponseWriter, r *http.Request) {
	shopID, ok := h.parseShopID(w, r)
	if !ok {
		return
	}

	shop, err := h.shopService.GetShop(r.Context(), shopID)
	if err != nil {
		if errors.Is(err, repository.ErrShopNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "shop not found")
			return
		}
		h.logger.Error("Failed to get shop", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get shop")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toShopResponse(shop))
}

// ListShops returns all shops, optionally filtered to active ones
func (h *ShopHandler) ListShops(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	shops, err := h.shopService.ListShops(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("Failed to list shops", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list shops")
		return
	}

	responses := make([]ShopResponse, 0, len(shops))
	for _, shop := range shops {
		responses = append(responses, toShopResponse(shop))
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"shops": responses,
		"total": len(responses),
	})
}

// SetActive toggles a shop's active flag
func (h *ShopHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	shopID, ok := h.parseShopID(w, r)
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.shopService.SetActive(r.Context(), shopID, *req.Active); err != nil {
		if errors.Is(err, repository.ErrShopNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "shop not found")
			return
		}
		h.logger.Error("Failed to set shop active flag", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to update shop")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"active": *req.Active})
}

func (h *ShopHandler) parseShopID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	shopID, err := uuid.Parse(chi.URLParam(r, "shopID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid shop ID")
		return uuid.Nil, false
	}
	return shopID, true
}

func toShopResponse(shop *domain.Shop) ShopResponse {
	return ShopResponse{
		ID:               shop.ID.String(),
		ShopifyShopID:    shop.ShopifyShopID,
		Domain:           shop.Domain,
		ShopifyDomain:    shop.ShopifyDomain,
		Name:             shop.Name,
		Email:            shop.Email,
		PlanName:         shop.PlanName,
		IsActive:         shop.IsActive,
		InstalledAt:      shop.InstalledAt,
		UninstalledAt:    shop.UninstalledAt,
		LastSyncedAt:     shop.LastSyncedAt,
		LastSyncFailedAt: shop.LastSyncFailedAt,
		LastSyncError:    shop.LastSyncError,
		LastSyncPage:     shop.LastSyncPage,
		LastSinceID:      shop.LastSinceID,
	}
}
