package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seclens/rotograph/internal/contracts"
)

// ExplanationRepository implements contracts.ExplanationRepository on Postgres.
type ExplanationRepository struct {
	pool *pgxpool.Pool
}

// NewExplanationRepository creates a new explanation repository
func NewExplanationRepository(pool *pgxpool.Pool) *ExplanationRepository {
	return &ExplanationRepository{pool: pool}
}

// Save persists a generated explanation. Explanations are immutable.
func (r *ExplanationRepository) Save(ctx context.Context, explanation *contracts.Explanation) error {
	query := `
		INSERT INTO explanations (id, edge_ids, question, content, accessions, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	accessions := explanation.Accessions
	if accessions == nil {
		accessions = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		explanation.ID, explanation.EdgeIDs, explanation.Question,
		explanation.Content, accessions, explanation.Model, explanation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save explanation %s: %w", explanation.ID, err)
	}
	return nil
}

// GetByID retrieves an explanation by ID.
func (r *ExplanationRepository) GetByID(ctx context.Context, id string) (*contracts.Explanation, error) {
	query := `
		SELECT id, edge_ids, question, content, accessions, model, created_at
		FROM explanations
		WHERE id = $1
	`

	var e contracts.Explanation
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.EdgeIDs, &e.Question, &e.Content, &e.Accessions, &e.Model, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
