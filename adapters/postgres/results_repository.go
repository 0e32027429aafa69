package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"buurtstat/domain/core"
	"buurtstat/domain/report"
	apperrors "buurtstat/internal/errors"
)

// ResultsRepository persists run summaries in PostgreSQL. The full
// summary travels as validated JSONB; a few columns are lifted out for
// listing runs without parsing every document.
type ResultsRepository struct {
	db *sqlx.DB
}

// NewResultsRepository creates a results repository on an open pool.
func NewResultsRepository(db *sqlx.DB) *ResultsRepository {
	return &ResultsRepository{db: db}
}

// RunInfo is one row of the run listing.
type RunInfo struct {
	RunID       string    `db:"run_id" json:"run_id"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
	AnalysisN   int       `db:"analysis_n" json:"analysis_n"`
	ICC         float64   `db:"icc" json:"icc"`
}

// Save stores a run's summary, replacing any previous record for the
// same run id.
func (r *ResultsRepository) Save(ctx context.Context, s *report.Summary) error {
	payload, err := s.Marshal()
	if err != nil {
		return apperrors.DatabaseError("summary failed validation before save", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, generated_at, analysis_n, icc, summary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO UPDATE
		SET generated_at = EXCLUDED.generated_at,
		    analysis_n   = EXCLUDED.analysis_n,
		    icc          = EXCLUDED.icc,
		    summary      = EXCLUDED.summary
	`, s.RunID.String(), s.GeneratedAt, s.Sample.AnalysisN, s.ICC.ICC, payload)
	if err != nil {
		return apperrors.DatabaseError("failed to save run summary", err)
	}
	return nil
}

// Get retrieves one run's summary by id.
func (r *ResultsRepository) Get(ctx context.Context, runID core.RunID) (*report.Summary, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload,
		`SELECT summary FROM analysis_runs WHERE run_id = $1`, runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.WithCode(apperrors.CodeNotFound, core.ErrRunNotFound)
	}
	if err != nil {
		return nil, apperrors.DatabaseError("failed to load run summary", err)
	}
	return report.UnmarshalSummary(payload)
}

// LatestSummary returns the most recently generated run's summary.
func (r *ResultsRepository) LatestSummary(ctx context.Context) (*report.Summary, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload,
		`SELECT summary FROM analysis_runs ORDER BY generated_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.WithCode(apperrors.CodeNotFound, core.ErrRunNotFound)
	}
	if err != nil {
		return nil, apperrors.DatabaseError("failed to load latest summary", err)
	}
	return report.UnmarshalSummary(payload)
}

// List returns run metadata, newest first.
func (r *ResultsRepository) List(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []RunInfo
	err := r.db.SelectContext(ctx, &runs, `
		SELECT run_id, generated_at, analysis_n, icc
		FROM analysis_runs
		ORDER BY generated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list runs", err)
	}
	return runs, nil
}

// Delete removes a run's stored summary.
func (r *ResultsRepository) Delete(ctx context.Context, runID core.RunID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM analysis_runs WHERE run_id = $1`, runID.String())
	if err != nil {
		return apperrors.DatabaseError("failed to delete run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("analysis run")
	}
	return nil
}
