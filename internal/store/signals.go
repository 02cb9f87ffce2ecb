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

// SignalBundleRepository implements contracts.SignalBundleRepository on Postgres.
type SignalBundleRepository struct {
	pool *pgxpool.Pool
}

// NewSignalBundleRepository creates a new signal bundle repository
func NewSignalBundleRepository(pool *pgxpool.Pool) *SignalBundleRepository {
	return &SignalBundleRepository{pool: pool}
}

// Upsert writes a bundle keyed by (cik, period start). Recomputed bundles
// overwrite in place.
func (r *SignalBundleRepository) Upsert(ctx context.Context, bundle *contracts.SignalBundle) error {
	query := `
		INSERT INTO signal_bundles
			(cik, period_start, period_end, holdings_delta, short_interest,
			 ats_weekly_volume, options_overlay, uhf_overlay, accessions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cik, period_start) DO UPDATE SET
			period_end = EXCLUDED.period_end,
			holdings_delta = EXCLUDED.holdings_delta,
			short_interest = EXCLUDED.short_interest,
			ats_weekly_volume = EXCLUDED.ats_weekly_volume,
			options_overlay = EXCLUDED.options_overlay,
			uhf_overlay = EXCLUDED.uhf_overlay,
			accessions = EXCLUDED.accessions
	`

	accessions := bundle.FetchedAccessions
	if accessions == nil {
		accessions = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		bundle.CIK, bundle.Period.Start, bundle.Period.End,
		bundle.HoldingsDelta, bundle.ShortInterest, bundle.ATSWeeklyVolume,
		bundle.OptionsOverlay, bundle.UHFOverlay, accessions,
	)
	if err != nil {
		return fmt.Errorf("upsert signal bundle %s@%s: %w", bundle.CIK, bundle.Period.Start.Format("2006-01-02"), err)
	}
	return nil
}

// GetByPeriod retrieves the bundle for one (cik, period start).
func (r *SignalBundleRepository) GetByPeriod(ctx context.Context, cik string, periodStart time.Time) (*contracts.SignalBundle, error) {
	query := `
		SELECT cik, period_start, period_end, holdings_delta, short_interest,
		       ats_weekly_volume, options_overlay, uhf_overlay, accessions
		FROM signal_bundles
		WHERE cik = $1 AND period_start = $2
	`

	b, err := scanBundle(r.pool.QueryRow(ctx, query, cik, periodStart))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	return b, err
}

// GetByRange retrieves bundles whose period start falls in [from, to),
// ordered by period.
func (r *SignalBundleRepository) GetByRange(ctx context.Context, cik string, from, to time.Time) ([]*contracts.SignalBundle, error) {
	query := `
		SELECT cik, period_start, period_end, holdings_delta, short_interest,
		       ats_weekly_volume, options_overlay, uhf_overlay, accessions
		FROM signal_bundles
		WHERE cik = $1 AND period_start >= $2 AND period_start < $3
		ORDER BY period_start ASC
	`

	rows, err := r.pool.Query(ctx, query, cik, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bundles []*contracts.SignalBundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, rows.Err()
}

func scanBundle(row pgx.Row) (*contracts.SignalBundle, error) {
	var b contracts.SignalBundle
	err := row.Scan(
		&b.CIK, &b.Period.Start, &b.Period.End,
		&b.HoldingsDelta, &b.ShortInterest, &b.ATSWeeklyVolume,
		&b.OptionsOverlay, &b.UHFOverlay, &b.FetchedAccessions,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ScoreRepository implements contracts.ScoreRepository on Postgres.
type ScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(pool *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{pool: pool}
}

// Upsert writes a score record keyed by (cik, period start).
func (r *ScoreRepository) Upsert(ctx context.Context, record *contracts.ScoreRecord) error {
	query := `
		INSERT INTO score_records
			(cik, period_start, period_end, composite, uptake_same, uptake_next,
			 uhf_same, uhf_next, opt_same, opt_next, short_relief, index_penalty, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (cik, period_start) DO UPDATE SET
			period_end = EXCLUDED.period_end,
			composite = EXCLUDED.composite,
			uptake_same = EXCLUDED.uptake_same,
			uptake_next = EXCLUDED.uptake_next,
			uhf_same = EXCLUDED.uhf_same,
			uhf_next = EXCLUDED.uhf_next,
			opt_same = EXCLUDED.opt_same,
			opt_next = EXCLUDED.opt_next,
			short_relief = EXCLUDED.short_relief,
			index_penalty = EXCLUDED.index_penalty,
			updated_at = EXCLUDED.updated_at
	`

	b := record.Breakdown
	_, err := r.pool.Exec(ctx, query,
		record.CIK, record.Period.Start, record.Period.End, record.Composite,
		b.UptakeSame, b.UptakeNext, b.UHFSame, b.UHFNext,
		b.OptSame, b.OptNext, b.ShortRelief, b.IndexPenalty,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert score %s@%s: %w", record.CIK, record.Period.Start.Format("2006-01-02"), err)
	}
	return nil
}

// GetByPeriod retrieves the score for one (cik, period start).
func (r *ScoreRepository) GetByPeriod(ctx context.Context, cik string, periodStart time.Time) (*contracts.ScoreRecord, error) {
	query := scoreSelect + ` WHERE cik = $1 AND period_start = $2`

	rec, err := scanScore(r.pool.QueryRow(ctx, query, cik, periodStart))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	return rec, err
}

// GetByRange retrieves scores whose period start falls in [from, to),
// ordered by period.
func (r *ScoreRepository) GetByRange(ctx context.Context, cik string, from, to time.Time) ([]*contracts.ScoreRecord, error) {
	query := scoreSelect + ` WHERE cik = $1 AND period_start >= $2 AND period_start < $3 ORDER BY period_start ASC`

	rows, err := r.pool.Query(ctx, query, cik, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*contracts.ScoreRecord
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const scoreSelect = `
	SELECT cik, period_start, period_end, composite, uptake_same, uptake_next,
	       uhf_same, uhf_next, opt_same, opt_next, short_relief, index_penalty, updated_at
	FROM score_records
`

func scanScore(row pgx.Row) (*contracts.ScoreRecord, error) {
	var rec contracts.ScoreRecord
	err := row.Scan(
		&rec.CIK, &rec.Period.Start, &rec.Period.End, &rec.Composite,
		&rec.Breakdown.UptakeSame, &rec.Breakdown.UptakeNext,
		&rec.Breakdown.UHFSame, &rec.Breakdown.UHFNext,
		&rec.Breakdown.OptSame, &rec.Breakdown.OptNext,
		&rec.Breakdown.ShortRelief, &rec.Breakdown.IndexPenalty,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
