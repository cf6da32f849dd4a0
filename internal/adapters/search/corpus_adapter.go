package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
	"github.com/trialworks/eligibility-etl/internal/domain/repositories"
	tsclient "github.com/trialworks/eligibility-etl/internal/infrastructure/clients/typesense"
	apperrors "github.com/trialworks/eligibility-etl/pkg/errors"
)

// CorpusAdapter implements the CorpusStore interface on Typesense.
type CorpusAdapter struct {
	client     *tsclient.Client
	collection string

	mu           sync.Mutex
	bytesWritten int64
	docsWritten  int64
}

var _ repositories.CorpusStore = (*CorpusAdapter)(nil)

// NewCorpusAdapter creates a new corpus adapter for the given collection.
func NewCorpusAdapter(client *tsclient.Client, collection string) *CorpusAdapter {
	return &CorpusAdapter{client: client, collection: collection}
}

// EnsureCollection makes sure the eligibility collection exists.
func (a *CorpusAdapter) EnsureCollection(ctx context.Context) error {
	return a.client.EnsureCollection(ctx, a.collection)
}

// Insert writes one eligibility document, keyed by study id. A response
// without the document id counts as an unacknowledged write.
func (a *CorpusAdapter) Insert(ctx context.Context, doc *entities.EligibilityDocument) (string, error) {
	payload := documentPayload(doc)

	response, err := a.client.Client().Collection(a.collection).Documents().Upsert(ctx, payload)
	if err != nil {
		return "", apperrors.NewExternalError(
			fmt.Sprintf("failed to write document for study %s", doc.StudyID), err)
	}

	id, ok := response["id"].(string)
	if !ok || id == "" {
		return "", apperrors.NewWriteError(doc.StudyID, nil)
	}

	a.account(payload)
	return id, nil
}

// Stats reports store-level figures: collection and object counts from the
// store, byte figures from this process's own write accounting.
func (a *CorpusAdapter) Stats(ctx context.Context) (*entities.StoreStats, error) {
	collections, err := a.client.Client().Collections().Retrieve(ctx)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to retrieve collection stats", err)
	}

	stats := &entities.StoreStats{Collections: len(collections)}
	for _, col := range collections {
		if col.Name == a.collection && col.NumDocuments != nil {
			stats.Objects = *col.NumDocuments
		}
	}

	a.mu.Lock()
	if a.docsWritten > 0 {
		stats.DataSizeBytes = a.bytesWritten
		stats.StorageSizeBytes = a.bytesWritten
		stats.AvgObjSizeBytes = a.bytesWritten / a.docsWritten
	}
	a.mu.Unlock()

	return stats, nil
}

// documentPayload converts the document into the store's shape, keyed by
// study id so reruns upsert instead of duplicating.
func documentPayload(doc *entities.EligibilityDocument) map[string]interface{} {
	payload := map[string]interface{}{
		"id":                 doc.StudyID,
		"study_id":           doc.StudyID,
		"gender":             doc.Gender,
		"inclusion_criteria": doc.InclusionCriteria,
	}
	if doc.MinimumAge != nil {
		payload["minimum_age"] = *doc.MinimumAge
	}
	if doc.MaximumAge != nil {
		payload["maximum_age"] = *doc.MaximumAge
	}
	if doc.ExclusionCriteria != nil {
		payload["exclusion_criteria"] = doc.ExclusionCriteria
	}
	return payload
}

func (a *CorpusAdapter) account(payload map[string]interface{}) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	a.mu.Lock()
	a.bytesWritten += int64(len(encoded))
	a.docsWritten++
	a.mu.Unlock()
}
