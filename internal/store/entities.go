package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seclens/rotograph/internal/contracts"
)

// EntityRepository implements contracts.EntityRepository on Postgres.
type EntityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(pool *pgxpool.Pool) *EntityRepository {
	return &EntityRepository{pool: pool}
}

// Upsert inserts or refreshes an entity keyed by (cik, series, kind).
func (r *EntityRepository) Upsert(ctx context.Context, entity *contracts.Entity) (*contracts.Entity, error) {
	query := `
		INSERT INTO entities (cik, series, kind, name, ticker, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (cik, series, kind) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE entities.name END,
			ticker = CASE WHEN EXCLUDED.ticker <> '' THEN EXCLUDED.ticker ELSE entities.ticker END,
			updated_at = NOW()
		RETURNING id, cik, series, kind, name, ticker
	`

	var out contracts.Entity
	err := r.pool.QueryRow(ctx, query,
		entity.CIK, entity.Series, entity.Kind, entity.Name, entity.Ticker,
	).Scan(&out.ID, &out.CIK, &out.Series, &out.Kind, &out.Name, &out.Ticker)
	if err != nil {
		return nil, fmt.Errorf("upsert entity %s: %w", entity.Key(), err)
	}
	return &out, nil
}

// GetByKey retrieves the entity with the given natural key.
func (r *EntityRepository) GetByKey(ctx context.Context, cik, series string, kind contracts.EntityKind) (*contracts.Entity, error) {
	query := `
		SELECT id, cik, series, kind, name, ticker
		FROM entities
		WHERE cik = $1 AND series = $2 AND kind = $3
	`

	var e contracts.Entity
	err := r.pool.QueryRow(ctx, query, cik, series, kind).Scan(
		&e.ID, &e.CIK, &e.Series, &e.Kind, &e.Name, &e.Ticker,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByCIKs retrieves all entities whose CIK is in the given set.
func (r *EntityRepository) GetByCIKs(ctx context.Context, ciks []string) ([]*contracts.Entity, error) {
	if len(ciks) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, cik, series, kind, name, ticker
		FROM entities
		WHERE cik = ANY($1)
		ORDER BY cik, series, kind
	`

	rows, err := r.pool.Query(ctx, query, ciks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*contracts.Entity
	for rows.Next() {
		var e contracts.Entity
		if err := rows.Scan(&e.ID, &e.CIK, &e.Series, &e.Kind, &e.Name, &e.Ticker); err != nil {
			return nil, err
		}
		entities = append(entities, &e)
	}
	return entities, rows.Err()
}

// IssuerRepository implements contracts.IssuerRepository on Postgres.
type IssuerRepository struct {
	pool *pgxpool.Pool
}

// NewIssuerRepository creates a new issuer repository
func NewIssuerRepository(pool *pgxpool.Pool) *IssuerRepository {
	return &IssuerRepository{pool: pool}
}

// Upsert inserts or refreshes an issuer. Identity fields win on first write;
// CUSIPs are merged so resolved identifiers are never lost.
func (r *IssuerRepository) Upsert(ctx context.Context, issuer *contracts.Issuer) error {
	query := `
		INSERT INTO issuers (cik, series, ticker, name, cusips, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cik) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE issuers.name END,
			cusips = ARRAY(SELECT DISTINCT unnest(issuers.cusips || EXCLUDED.cusips) ORDER BY 1)
	`

	_, err := r.pool.Exec(ctx, query,
		issuer.CIK, issuer.Series, issuer.Ticker, issuer.Name, issuer.CUSIPs, issuer.Resolved,
	)
	if err != nil {
		return fmt.Errorf("upsert issuer %s: %w", issuer.CIK, err)
	}
	return nil
}

// GetByCIK retrieves an issuer by CIK.
func (r *IssuerRepository) GetByCIK(ctx context.Context, cik string) (*contracts.Issuer, error) {
	return r.getOne(ctx, `WHERE cik = $1`, cik)
}

// GetByTicker retrieves an issuer by ticker.
func (r *IssuerRepository) GetByTicker(ctx context.Context, ticker string) (*contracts.Issuer, error) {
	return r.getOne(ctx, `WHERE ticker = $1`, ticker)
}

// GetByCUSIP retrieves the issuer that owns a CUSIP.
func (r *IssuerRepository) GetByCUSIP(ctx context.Context, cusip string) (*contracts.Issuer, error) {
	return r.getOne(ctx, `WHERE $1 = ANY(cusips)`, cusip)
}

func (r *IssuerRepository) getOne(ctx context.Context, where string, arg any) (*contracts.Issuer, error) {
	query := `
		SELECT cik, series, ticker, name, cusips, resolved_at
		FROM issuers
	` + where

	var iss contracts.Issuer
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&iss.CIK, &iss.Series, &iss.Ticker, &iss.Name, &iss.CUSIPs, &iss.Resolved,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &iss, nil
}

// AppendCUSIPs merges newly-seen CUSIPs into the issuer's set.
func (r *IssuerRepository) AppendCUSIPs(ctx context.Context, cik string, cusips []string) error {
	if len(cusips) == 0 {
		return nil
	}

	query := `
		UPDATE issuers
		SET cusips = ARRAY(SELECT DISTINCT unnest(cusips || $2) ORDER BY 1)
		WHERE cik = $1
	`

	tag, err := r.pool.Exec(ctx, query, cik, cusips)
	if err != nil {
		return fmt.Errorf("append cusips for %s: %w", cik, err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}
