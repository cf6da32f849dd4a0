package repositories

import (
	"context"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
)

// CorpusStore is the destination document store. Insert returns the store's
// identifier for the written document; an unacknowledged write surfaces as
// an error.
type CorpusStore interface {
	EnsureCollection(ctx context.Context) error
	Insert(ctx context.Context, doc *entities.EligibilityDocument) (string, error)
	Stats(ctx context.Context) (*entities.StoreStats, error)
}

// TransferEventBus publishes transfer lifecycle events for interested
// consumers. Optional collaborator; a nil bus disables publishing.
type TransferEventBus interface {
	Publish(ctx context.Context, event *entities.TransferEvent) error
}
