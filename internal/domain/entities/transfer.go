package entities

import (
	"time"

	"github.com/google/uuid"
)

// TransferSummary is the end-of-run accounting for one transfer.
type TransferSummary struct {
	RunID            string         `json:"run_id"`
	Total            int            `json:"total"`
	Written          int            `json:"written"`
	Skipped          int            `json:"skipped"`
	MarkerMismatch   int            `json:"marker_mismatch"`
	EmptyCriteria    int            `json:"empty_criteria"`
	MissingNarrative int            `json:"missing_narrative"`
	StartedAt        time.Time      `json:"started_at"`
	Duration         time.Duration  `json:"duration"`
	StoreStats       *StoreStats    `json:"store_stats,omitempty"`
	Aborted          bool           `json:"aborted"`
	AbortedStudyID   string         `json:"aborted_study_id,omitempty"`
}

// NewTransferSummary starts accounting for a fresh run.
func NewTransferSummary() *TransferSummary {
	return &TransferSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// RecordSkip tallies one skipped record under its classification.
func (s *TransferSummary) RecordSkip(c Classification) {
	s.Skipped++
	switch c {
	case ClassificationMarkerMismatch:
		s.MarkerMismatch++
	case ClassificationEmptyCriteria:
		s.EmptyCriteria++
	case ClassificationMissingNarrative:
		s.MissingNarrative++
	}
}

// StoreStats carries informational store-level figures reported at the end
// of a run. Byte figures cover the documents written by this process.
type StoreStats struct {
	Collections      int   `json:"collections"`
	Objects          int64 `json:"objects"`
	AvgObjSizeBytes  int64 `json:"avg_obj_size_bytes"`
	DataSizeBytes    int64 `json:"data_size_bytes"`
	StorageSizeBytes int64 `json:"storage_size_bytes"`
}

// TransferEventType identifies transfer lifecycle events on the bus.
type TransferEventType string

const (
	TransferEventRunCompleted TransferEventType = "run_completed"
	TransferEventRunAborted   TransferEventType = "run_aborted"
)

// TransferEvent is the envelope published after a run finishes.
type TransferEvent struct {
	ID        string            `json:"id"`
	EventType TransferEventType `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Summary   *TransferSummary  `json:"summary"`
}

// NewTransferEvent wraps a summary in a publishable event.
func NewTransferEvent(eventType TransferEventType, summary *TransferSummary) *TransferEvent {
	return &TransferEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now(),
		Summary:   summary,
	}
}
