package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
	"github.com/trialworks/eligibility-etl/internal/domain/repositories"
	"github.com/trialworks/eligibility-etl/internal/extraction"
	apperrors "github.com/trialworks/eligibility-etl/pkg/errors"
)

const (
	parsableNarrative   = "Inclusion Criteria:\n\n-  Age over 18\n\n-  Signed consent\n\nExclusion Criteria:\n\n-  Pregnant\n\n"
	unparsableNarrative = "1. Age over 18\n2. Consented"
)

func strptr(s string) *string {
	return &s
}

// fakeCursor replays a fixed record slice, tracking Close calls.
type fakeCursor struct {
	records []*entities.TrialRecord
	pos     int
	closed  bool
	iterErr error
}

func (c *fakeCursor) Next() bool {
	if c.pos >= len(c.records) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Record() (*entities.TrialRecord, error) {
	return c.records[c.pos-1], nil
}

func (c *fakeCursor) Err() error   { return c.iterErr }
func (c *fakeCursor) Close() error { c.closed = true; return nil }

type fakeSource struct {
	cursor    *fakeCursor
	streamErr error
}

func (s *fakeSource) Stream(ctx context.Context) (repositories.TrialCursor, error) {
	if s.streamErr != nil {
		return nil, s.streamErr
	}
	return s.cursor, nil
}

// fakeStore accepts writes until failAt (1-based write ordinal) is reached.
type fakeStore struct {
	written      []*entities.EligibilityDocument
	failAt       int
	failError    error
	ensureCalled bool
	statsCalled  bool
}

func (s *fakeStore) EnsureCollection(ctx context.Context) error {
	s.ensureCalled = true
	return nil
}

func (s *fakeStore) Insert(ctx context.Context, doc *entities.EligibilityDocument) (string, error) {
	if s.failAt > 0 && len(s.written)+1 == s.failAt {
		if s.failError != nil {
			return "", s.failError
		}
		return "", apperrors.NewWriteError(doc.StudyID, nil)
	}
	s.written = append(s.written, doc)
	return doc.StudyID, nil
}

func (s *fakeStore) Stats(ctx context.Context) (*entities.StoreStats, error) {
	s.statsCalled = true
	return &entities.StoreStats{Collections: 1, Objects: int64(len(s.written))}, nil
}

type fakeBus struct {
	events []*entities.TransferEvent
}

func (b *fakeBus) Publish(ctx context.Context, event *entities.TransferEvent) error {
	b.events = append(b.events, event)
	return nil
}

func record(id, narrative string) *entities.TrialRecord {
	return &entities.TrialRecord{
		NCTID:      id,
		MinimumAge: strptr("18 Years"),
		MaximumAge: strptr("65 Years"),
		Gender:     "All",
		Criteria:   strptr(narrative),
	}
}

func newService(source *fakeSource, store *fakeStore, opts Options) *TransferService {
	return NewTransferService(source, store, extraction.New(), opts)
}

func TestRun_WritesParsableDocument(t *testing.T) {
	cursor := &fakeCursor{records: []*entities.TrialRecord{record("NCT00000001", parsableNarrative)}}
	store := &fakeStore{}
	service := newService(&fakeSource{cursor: cursor}, store, Options{})

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Written)
	assert.Equal(t, 0, summary.Skipped)
	require.Len(t, store.written, 1)
	assert.Equal(t, []string{"Age over 18", "Signed consent"}, store.written[0].InclusionCriteria)
	assert.Equal(t, []string{"Pregnant"}, store.written[0].ExclusionCriteria)
	assert.True(t, cursor.closed)
	assert.True(t, store.ensureCalled)
}

func TestRun_SkipsUnparsableNarrative(t *testing.T) {
	cursor := &fakeCursor{records: []*entities.TrialRecord{record("NCT00000002", unparsableNarrative)}}
	store := &fakeStore{}
	service := newService(&fakeSource{cursor: cursor}, store, Options{})

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 0, summary.Written)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.MarkerMismatch)
	assert.Empty(t, store.written)
}

func TestRun_SkipsMissingNarrativeAndContinues(t *testing.T) {
	missing := record("NCT00000003", "")
	missing.Criteria = nil
	cursor := &fakeCursor{records: []*entities.TrialRecord{
		missing,
		record("NCT00000004", parsableNarrative),
	}}
	store := &fakeStore{}
	service := newService(&fakeSource{cursor: cursor}, store, Options{})

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Written)
	assert.Equal(t, 1, summary.MissingNarrative)
}

func TestRun_MixedBatchCounts(t *testing.T) {
	// 100 rows: 79 parseable, 21 unparsable. The summary and the store's
	// object count must agree exactly.
	var records []*entities.TrialRecord
	for i := 1; i <= 100; i++ {
		id := fmt.Sprintf("NCT%08d", i)
		if i <= 79 {
			records = append(records, record(id, parsableNarrative))
		} else {
			records = append(records, record(id, unparsableNarrative))
		}
	}

	cursor := &fakeCursor{records: records}
	store := &fakeStore{}
	service := newService(&fakeSource{cursor: cursor}, store, Options{})

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100, summary.Total)
	assert.Equal(t, 79, summary.Written)
	assert.Equal(t, 21, summary.Skipped)
	assert.Equal(t, 21, summary.MarkerMismatch)
	require.NotNil(t, summary.StoreStats)
	assert.EqualValues(t, 79, summary.StoreStats.Objects)
}

func TestRun_AbortsOnUnacknowledgedWrite(t *testing.T) {
	var records []*entities.TrialRecord
	for i := 1; i <= 100; i++ {
		records = append(records, record(fmt.Sprintf("NCT%08d", i), parsableNarrative))
	}

	cursor := &fakeCursor{records: records}
	store := &fakeStore{failAt: 50}
	service := newService(&fakeSource{cursor: cursor}, store, Options{})

	summary, err := service.Run(context.Background())
	require.Error(t, err)

	assert.True(t, apperrors.IsWriteError(err))
	assert.Contains(t, err.Error(), "NCT00000050")

	// Rows 1-49 stay written; processing stopped at row 50.
	assert.Len(t, store.written, 49)
	assert.Equal(t, 50, summary.Total)
	assert.Equal(t, 49, summary.Written)
	assert.True(t, summary.Aborted)
	assert.Equal(t, "NCT00000050", summary.AbortedStudyID)
	assert.True(t, cursor.closed)
}

func TestRun_RetriesTransientWriteThenAborts(t *testing.T) {
	cursor := &fakeCursor{records: []*entities.TrialRecord{record("NCT00000001", parsableNarrative)}}
	store := &fakeStore{failAt: 1, failError: errors.New("connection reset")}
	service := newService(&fakeSource{cursor: cursor}, store, Options{WriteRetryAttempts: 2})

	summary, err := service.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsWriteError(err))
	assert.True(t, summary.Aborted)
}

func TestRun_PublishesRunCompletedEvent(t *testing.T) {
	cursor := &fakeCursor{records: []*entities.TrialRecord{record("NCT00000001", parsableNarrative)}}
	bus := &fakeBus{}
	service := newService(&fakeSource{cursor: cursor}, &fakeStore{}, Options{EventBus: bus})

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, bus.events, 1)
	assert.Equal(t, entities.TransferEventRunCompleted, bus.events[0].EventType)
	assert.Equal(t, summary.RunID, bus.events[0].Summary.RunID)
}

func TestRun_PublishesAbortEvent(t *testing.T) {
	cursor := &fakeCursor{records: []*entities.TrialRecord{record("NCT00000001", parsableNarrative)}}
	bus := &fakeBus{}
	service := newService(&fakeSource{cursor: cursor}, &fakeStore{failAt: 1}, Options{EventBus: bus})

	_, err := service.Run(context.Background())
	require.Error(t, err)

	require.Len(t, bus.events, 1)
	assert.Equal(t, entities.TransferEventRunAborted, bus.events[0].EventType)
}

func TestRun_StreamFailureIsFatal(t *testing.T) {
	service := newService(&fakeSource{streamErr: errors.New("connection refused")}, &fakeStore{}, Options{})

	summary, err := service.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, summary.Total)
}

func TestRun_CursorErrorIsFatal(t *testing.T) {
	cursor := &fakeCursor{
		records: []*entities.TrialRecord{record("NCT00000001", parsableNarrative)},
		iterErr: errors.New("stream truncated"),
	}
	service := newService(&fakeSource{cursor: cursor}, &fakeStore{}, Options{})

	_, err := service.Run(context.Background())
	require.Error(t, err)
	assert.True(t, cursor.closed)
}
