package repositories

import (
	"context"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
)

// TrialCursor is a lazy, forward-only view over eligibility rows. It is
// consumed exactly once and cannot be rewound.
type TrialCursor interface {
	// Next advances the cursor and reports whether a record is available.
	Next() bool
	// Record returns the record at the current position.
	Record() (*entities.TrialRecord, error)
	// Err returns the first error encountered while iterating.
	Err() error
	// Close releases the cursor's resources. Safe to call more than once.
	Close() error
}

// TrialSource produces the ordered row sequence from the registry mirror.
type TrialSource interface {
	Stream(ctx context.Context) (TrialCursor, error)
}
