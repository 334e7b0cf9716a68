package sync

import (
	"context"
	"errors"
	"time"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/repository"
	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/shopify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the retry decision for a page-level sync error.
type Outcome int

const (
	// Retryable errors are handed back to the queue's attempt budget.
	Retryable Outcome = iota
	// Fatal errors terminate the shop's sync chain immediately.
	Fatal
)

// Classify decides whether a page-level error is worth retrying. Auth
// rejections and contract drift are fatal; rate limits, network trouble and
// anything unrecognized get the benefit of the bounded retry budget.
func Classify(err error) Outcome {
	if errors.Is(err, shopify.ErrAuth) {
		return Fatal
	}

	var malformed *shopify.MalformedResponseError
	if errors.As(err, &malformed) {
		return Fatal
	}

	var rateLimited *shopify.RateLimitedError
	if errors.As(err, &rateLimited) {
		return Retryable
	}

	var transient *shopify.TransientError
	if errors.As(err, &transient) {
		return Retryable
	}

	return Retryable
}

// StatusRecorder persists terminal sync outcomes on the shop row. It is
// the only component that mutates the shop's sync-status fields.
type StatusRecorder struct {
	shops  repository.ShopRepository
	logger *zap.Logger
}

// NewStatusRecorder creates a StatusRecorder.
func NewStatusRecorder(shops repository.ShopRepository, logger *zap.Logger) *StatusRecorder {
	return &StatusRecorder{shops: shops, logger: logger}
}

// RecordSuccess stamps last_synced_at and clears the failure fields.
func (r *StatusRecorder) RecordSuccess(ctx context.Context, shopID uuid.UUID) {
	if err := r.shops.MarkSyncSuccess(ctx, shopID, time.Now().UTC()); err != nil {
		r.logger.Error("Failed to record sync success",
			zap.String("shop_id", shopID.String()),
			zap.Error(err),
		)
		return
	}
	r.logger.Info("Sync completed", zap.String("shop_id", shopID.String()))
}

// RecordFailure stamps the failure fields with the terminal error. No
// terminal failure is silently swallowed.
func (r *StatusRecorder) RecordFailure(ctx context.Context, shopID uuid.UUID, cause error) {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}

	if err := r.shops.MarkSyncFailure(ctx, shopID, time.Now().UTC(), message); err != nil {
		r.logger.Error("Failed to record sync failure",
			zap.String("shop_id", shopID.String()),
			zap.String("cause", message),
			zap.Error(err),
		)
		return
	}
	r.logger.Warn("Sync failed",
		zap.String("shop_id", shopID.String()),
		zap.String("error", message),
	)
}
