package postgres

import (
	"context"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	apperrors "buurtstat/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id       TEXT PRIMARY KEY,
	generated_at TIMESTAMPTZ NOT NULL,
	analysis_n   INTEGER NOT NULL,
	icc          DOUBLE PRECISION NOT NULL,
	summary      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_generated_at ON analysis_runs (generated_at DESC);
`

// Connect opens a PostgreSQL connection pool and ensures the results
// schema exists.
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to connect to postgres", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.DatabaseError("failed to apply results schema", err)
	}

	log.Printf("[Postgres] Connected, results schema ready")
	return db, nil
}
