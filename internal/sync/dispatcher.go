package sync

import (
	"context"
	"encoding/json"

	"github.com/Matlecks/TDD-SOLID-integration-shopify/internal/queue"

	"go.uber.org/zap"
)

// Dispatcher routes worker jobs by kind: shop profile refreshes go to the
// refresher, everything else is a page continuation for the coordinator.
// Page jobs predate the kind field and carry none.
type Dispatcher struct {
	coordinator *Coordinator
	refresher   *Refresher
	logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(coordinator *Coordinator, refresher *Refresher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{coordinator: coordinator, refresher: refresher, logger: logger}
}

// HandleJob is the queue handler shared by every job kind.
func (d *Dispatcher) HandleJob(ctx context.Context, job *queue.Job) error {
	if jobKind(job.Payload) != KindShopRefresh {
		return d.coordinator.HandleJob(ctx, job)
	}

	var refreshJob ShopRefreshJob
	if err := json.Unmarshal(job.Payload, &refreshJob); err != nil {
		d.logger.Error("Discarding undecodable refresh job",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return nil
	}
	return d.refresher.RefreshShop(ctx, refreshJob.ShopID)
}

// HandleExhausted is the queue's dead-letter callback shared by every job
// kind.
func (d *Dispatcher) HandleExhausted(ctx context.Context, job *queue.Job, cause error) {
	if jobKind(job.Payload) == KindShopRefresh {
		d.refresher.HandleExhausted(ctx, job, cause)
		return
	}
	d.coordinator.HandleExhausted(ctx, job, cause)
}

func jobKind(payload json.RawMessage) string {
	var envelope struct {
		Kind string `json:"kind"`
	}
	// An undecodable payload falls through to the coordinator, which owns
	// the drop-and-log path.
	_ = json.Unmarshal(payload, &envelope)
	return envelope.Kind
}
