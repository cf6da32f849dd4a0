package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
	"github.com/trialworks/eligibility-etl/internal/domain/repositories"
	"github.com/trialworks/eligibility-etl/internal/extraction"
	"github.com/trialworks/eligibility-etl/internal/infrastructure/observability"
	apperrors "github.com/trialworks/eligibility-etl/pkg/errors"
	"github.com/trialworks/eligibility-etl/pkg/retry"
)

// Options carries the optional collaborators of a TransferService.
type Options struct {
	// EventBus, when non-nil, receives a run summary event after each run.
	EventBus repositories.TransferEventBus

	// Metrics, when non-nil, receives per-record counters.
	Metrics *observability.Metrics

	// WriteRetryAttempts bounds the retry around each store write. The
	// default of 1 writes exactly once; a confirmed failure always aborts
	// the run regardless of this setting.
	WriteRetryAttempts int
}

// TransferService drives one transfer run: it streams eligibility rows from
// the registry, extracts structured criteria per row, writes accepted
// documents to the corpus store, and accounts for every skip. Strictly
// sequential: one record is taken end-to-end before the next is read.
type TransferService struct {
	source    repositories.TrialSource
	store     repositories.CorpusStore
	extractor *extraction.Extractor
	opts      Options
}

// NewTransferService creates a transfer service.
func NewTransferService(
	source repositories.TrialSource,
	store repositories.CorpusStore,
	extractor *extraction.Extractor,
	opts Options,
) *TransferService {
	if opts.WriteRetryAttempts <= 0 {
		opts.WriteRetryAttempts = 1
	}
	return &TransferService{
		source:    source,
		store:     store,
		extractor: extractor,
		opts:      opts,
	}
}

// Run executes one transfer run. It always returns a summary, partial when
// the run aborted; the error is non-nil for fatal conditions only
// (connectivity, cursor failure, unacknowledged write). Per-record
// classification problems never abort the run. Documents written before an
// abort stay written; the store has no multi-document atomicity.
func (s *TransferService) Run(ctx context.Context) (*entities.TransferSummary, error) {
	ctx, span := observability.StartSpan(ctx, "transfer.run")
	defer span.End()

	summary := entities.NewTransferSummary()
	span.SetAttributes(attribute.String("transfer.run_id", summary.RunID))

	if err := s.store.EnsureCollection(ctx); err != nil {
		span.RecordError(err)
		return s.finish(summary), err
	}

	cursor, err := s.source.Stream(ctx)
	if err != nil {
		span.RecordError(err)
		return s.finish(summary), err
	}
	defer cursor.Close()

	for cursor.Next() {
		rec, err := cursor.Record()
		if err != nil {
			span.RecordError(err)
			return s.finish(summary), err
		}

		summary.Total++
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordsProcessed.Add(ctx, 1)
		}

		doc, classification, err := s.extractor.Extract(rec)
		if err != nil {
			// Missing narrative skips the record and continues; only
			// store-side failures abort a run.
			summary.RecordSkip(classification)
			observability.RecordSkip(ctx, s.opts.Metrics, string(classification))
			log.Warn().Str("study_id", rec.NCTID).Msg(classification.Note())
			continue
		}

		if !doc.Writable() {
			summary.RecordSkip(classification)
			observability.RecordSkip(ctx, s.opts.Metrics, string(classification))
			log.Debug().Str("study_id", rec.NCTID).
				Str("classification", string(classification)).
				Msg(classification.Note())
			continue
		}

		if err := s.write(ctx, doc); err != nil {
			summary.Aborted = true
			summary.AbortedStudyID = rec.NCTID
			writeErr := apperrors.NewWriteError(rec.NCTID, err)
			span.RecordError(writeErr)
			log.Error().Err(writeErr).Str("study_id", rec.NCTID).
				Msg("Aborting run: store did not acknowledge write")
			s.publish(ctx, entities.TransferEventRunAborted, summary)
			return s.finish(summary), writeErr
		}

		summary.Written++
		if s.opts.Metrics != nil {
			s.opts.Metrics.DocumentsWritten.Add(ctx, 1)
		}
	}

	if err := cursor.Err(); err != nil {
		span.RecordError(err)
		return s.finish(summary), apperrors.NewExternalError("row stream failed", err)
	}

	if stats, err := s.store.Stats(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to collect store stats")
	} else {
		summary.StoreStats = stats
	}

	s.finish(summary)
	s.logSummary(summary)
	s.publish(ctx, entities.TransferEventRunCompleted, summary)
	return summary, nil
}

// write performs one store insert under the configured bounded retry. Happy
// path semantics are unchanged by the retry; a confirmed failure is final.
func (s *TransferService) write(ctx context.Context, doc *entities.EligibilityDocument) error {
	start := time.Now()
	defer func() {
		if s.opts.Metrics != nil {
			s.opts.Metrics.WriteDuration.Record(ctx,
				float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(attribute.String("store", "typesense")))
		}
	}()

	return retry.Do(ctx, retry.WriteConfig(s.opts.WriteRetryAttempts), func() error {
		_, err := s.store.Insert(ctx, doc)
		return err
	})
}

func (s *TransferService) finish(summary *entities.TransferSummary) *entities.TransferSummary {
	summary.Duration = time.Since(summary.StartedAt)
	return summary
}

func (s *TransferService) publish(ctx context.Context, eventType entities.TransferEventType, summary *entities.TransferSummary) {
	if s.opts.EventBus == nil {
		return
	}
	event := entities.NewTransferEvent(eventType, summary)
	if err := s.opts.EventBus.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("event_type", string(eventType)).
			Msg("Failed to publish transfer event")
	}
}

func (s *TransferService) logSummary(summary *entities.TransferSummary) {
	log.Info().
		Str("run_id", summary.RunID).
		Int("total", summary.Total).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Int("marker_mismatch", summary.MarkerMismatch).
		Int("empty_criteria", summary.EmptyCriteria).
		Int("missing_narrative", summary.MissingNarrative).
		Dur("duration", summary.Duration).
		Msg("Transfer run complete")
}
