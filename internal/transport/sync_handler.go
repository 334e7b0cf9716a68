package transport

import (
	"errors"
	"net/http"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/middleware"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncHandler exposes the sync trigger endpoints. The actual page work
// happens on the worker; these endpoints only start chains.
type SyncHandler struct {
	syncService service.SyncService
	logger      *zap.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(syncService service.SyncService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		logger:      logger,
	}
}

// RegisterRoutes registers all sync routes. Triggers are admin-only and
// rate limited so a misbehaving caller cannot hammer the queue.
func (h *SyncHandler) RegisterRoutes(r chi.Router, authMiddleware, adminMiddleware, rateLimitMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/sync", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Use(rateLimitMiddleware)

		r.Post("/shops/{shopID}", h.StartSync)
		r.Post("/all", h.SyncAllShops)
	})
}

// StartSync starts a sync chain for one shop
func (h *SyncHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	shopID, err := uuid.Parse(chi.URLParam(r, "shopID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid shop ID")
		return
	}

	if err := h.syncService.StartSync(r.Context(), shopID); err != nil {
		switch {
		case errors.Is(err, repository.ErrShopNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "shop not found")
		case errors.Is(err, service.ErrShopInactive):
			middleware.RespondWithError(w, http.StatusConflict, "shop is not active")
		case errors.Is(err, service.ErrSyncInProgress):
			middleware.RespondWithError(w, http.StatusConflict, "a sync is already running for this shop")
		default:
			h.logger.Error("Failed to start sync", zap.String("shop_id", shopID.String()), zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to start sync")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"status":  "scheduled",
		"shop_id": shopID.String(),
	})
}

// SyncAllShops starts a chain for every active shop
func (h *SyncHandler) SyncAllShops(w http.ResponseWriter, r *http.Request) {
	started, err := h.syncService.SyncAllShops(r.Context())
	if err != nil {
		h.logger.Error("Failed to dispatch sync chains", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to start syncs")
		return
	}

	middleware.RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "scheduled",
		"started": started,
	})
}
