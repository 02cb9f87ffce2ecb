package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seclens/rotograph/internal/contracts"
)

// CursorRepository implements contracts.CursorRepository on Postgres.
type CursorRepository struct {
	pool *pgxpool.Pool
}

// NewCursorRepository creates a new cursor repository
func NewCursorRepository(pool *pgxpool.Pool) *CursorRepository {
	return &CursorRepository{pool: pool}
}

// Get retrieves the watermark for a (pipeline, key) pair.
func (r *CursorRepository) Get(ctx context.Context, pipeline contracts.PipelineKind, key string) (*contracts.IngestionCursor, error) {
	query := `
		SELECT pipeline, key, watermark, updated_at
		FROM ingestion_cursors
		WHERE pipeline = $1 AND key = $2
	`

	var c contracts.IngestionCursor
	err := r.pool.QueryRow(ctx, query, pipeline, key).Scan(
		&c.Pipeline, &c.Key, &c.Watermark, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Advance moves the watermark forward. The guard clause keeps it monotonic:
// a stale caller cannot move an already-advanced watermark backwards.
func (r *CursorRepository) Advance(ctx context.Context, pipeline contracts.PipelineKind, key string, watermark time.Time) error {
	query := `
		INSERT INTO ingestion_cursors (pipeline, key, watermark, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (pipeline, key) DO UPDATE SET
			watermark = EXCLUDED.watermark,
			updated_at = NOW()
		WHERE ingestion_cursors.watermark < EXCLUDED.watermark
	`

	_, err := r.pool.Exec(ctx, query, pipeline, key, watermark)
	if err != nil {
		return fmt.Errorf("advance cursor %s/%s: %w", pipeline, key, err)
	}
	return nil
}

// Reset rewinds the watermark to since, for operator-driven reprocessing.
func (r *CursorRepository) Reset(ctx context.Context, pipeline contracts.PipelineKind, key string, since time.Time) error {
	query := `
		INSERT INTO ingestion_cursors (pipeline, key, watermark, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (pipeline, key) DO UPDATE SET
			watermark = EXCLUDED.watermark,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, pipeline, key, since)
	if err != nil {
		return fmt.Errorf("reset cursor %s/%s: %w", pipeline, key, err)
	}
	return nil
}
