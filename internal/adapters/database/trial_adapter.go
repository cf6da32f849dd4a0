package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
	"github.com/trialworks/eligibility-etl/internal/domain/repositories"
	apperrors "github.com/trialworks/eligibility-etl/pkg/errors"
)

// trialColumns is the single declared column list for the eligibility query.
// Scanning goes through db struct tags on trialRow, so the mapping survives
// column reordering in the source schema.
var trialColumns = []interface{}{
	"nct_id",
	"minimum_age",
	"maximum_age",
	"gender",
	"criteria",
}

// trialRow mirrors one row of the eligibilities table.
type trialRow struct {
	NCTID      string  `db:"nct_id"`
	MinimumAge *string `db:"minimum_age"`
	MaximumAge *string `db:"maximum_age"`
	Gender     *string `db:"gender"`
	Criteria   *string `db:"criteria"`
}

func (r *trialRow) toRecord() *entities.TrialRecord {
	rec := &entities.TrialRecord{
		NCTID:      r.NCTID,
		MinimumAge: r.MinimumAge,
		MaximumAge: r.MaximumAge,
		Criteria:   r.Criteria,
	}
	if r.Gender != nil {
		rec.Gender = *r.Gender
	}
	return rec
}

// TrialAdapter implements the TrialSource interface over the registry mirror
type TrialAdapter struct {
	db       *sqlx.DB
	builder  goqu.DialectWrapper
	table    string
	rowLimit int
}

// NewTrialAdapter creates a new trial source adapter. rowLimit <= 0 streams
// the whole table.
func NewTrialAdapter(db *sqlx.DB, table string, rowLimit int) repositories.TrialSource {
	return &TrialAdapter{
		db:       db,
		builder:  goqu.Dialect("postgres"),
		table:    table,
		rowLimit: rowLimit,
	}
}

// Stream opens the ordered, forward-only row cursor
func (a *TrialAdapter) Stream(ctx context.Context) (repositories.TrialCursor, error) {
	ds := a.builder.Select(trialColumns...).
		From(a.table).
		Order(goqu.C("nct_id").Asc())

	if a.rowLimit > 0 {
		ds = ds.Limit(uint(a.rowLimit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build eligibility query", err)
	}

	rows, err := a.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to query eligibilities", err)
	}

	return &trialCursor{rows: rows}, nil
}

type trialCursor struct {
	rows *sqlx.Rows
}

func (c *trialCursor) Next() bool {
	return c.rows.Next()
}

func (c *trialCursor) Record() (*entities.TrialRecord, error) {
	var row trialRow
	if err := c.rows.StructScan(&row); err != nil {
		return nil, apperrors.NewInternalError("failed to scan eligibility row", err)
	}
	return row.toRecord(), nil
}

func (c *trialCursor) Err() error {
	return c.rows.Err()
}

func (c *trialCursor) Close() error {
	return c.rows.Close()
}
