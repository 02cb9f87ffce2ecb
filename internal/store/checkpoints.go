package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seclens/rotograph/internal/durable"
)

// CheckpointStore implements durable.CheckpointStore on Postgres.
// ClaimDue relies on a single UPDATE ... RETURNING so concurrent runners
// never claim the same record twice.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a new checkpoint store
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Create inserts a fresh checkpoint record.
func (s *CheckpointStore) Create(ctx context.Context, cp *durable.Checkpoint) error {
	query := `
		INSERT INTO checkpoints
			(run_id, workflow, iteration, version, args, status, wake_at, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`

	_, err := s.pool.Exec(ctx, query,
		cp.RunID, cp.Workflow, cp.Iteration, cp.Version,
		[]byte(cp.Args), cp.Status, cp.WakeAt, cp.LastError,
	)
	if err != nil {
		return fmt.Errorf("create checkpoint %s: %w", cp.RunID, err)
	}
	return nil
}

// ClaimDue atomically moves one due pending record to running and returns it.
// Returns (nil, nil) when nothing is due.
func (s *CheckpointStore) ClaimDue(ctx context.Context, now time.Time) (*durable.Checkpoint, error) {
	query := `
		UPDATE checkpoints
		SET status = $1, updated_at = NOW()
		WHERE run_id = (
			SELECT run_id FROM checkpoints
			WHERE status = $2 AND wake_at <= $3
			ORDER BY wake_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING run_id, workflow, iteration, version, args, status, wake_at, last_error, updated_at
	`

	cp, err := scanCheckpoint(s.pool.QueryRow(ctx, query, durable.StatusRunning, durable.StatusPending, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// ContinueAsNew replaces the running record with its successor unit.
func (s *CheckpointStore) ContinueAsNew(ctx context.Context, next *durable.Checkpoint) error {
	query := `
		UPDATE checkpoints
		SET iteration = $2, version = $3, args = $4, status = $5,
		    wake_at = $6, last_error = '', updated_at = NOW()
		WHERE run_id = $1 AND iteration = $7
	`

	tag, err := s.pool.Exec(ctx, query,
		next.RunID, next.Iteration, next.Version, []byte(next.Args),
		durable.StatusPending, next.WakeAt, next.Iteration-1,
	)
	if err != nil {
		return fmt.Errorf("continue checkpoint %s: %w", next.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("continue checkpoint %s: iteration %d not running", next.RunID, next.Iteration-1)
	}
	return nil
}

// Complete marks the run as finished.
func (s *CheckpointStore) Complete(ctx context.Context, runID string, iteration int) error {
	return s.finish(ctx, runID, iteration, durable.StatusCompleted, "")
}

// Fail marks the run as failed with the terminal error message.
func (s *CheckpointStore) Fail(ctx context.Context, runID string, iteration int, message string) error {
	return s.finish(ctx, runID, iteration, durable.StatusFailed, message)
}

func (s *CheckpointStore) finish(ctx context.Context, runID string, iteration int, status durable.Status, message string) error {
	query := `
		UPDATE checkpoints
		SET status = $3, last_error = $4, updated_at = NOW()
		WHERE run_id = $1 AND iteration = $2
	`

	tag, err := s.pool.Exec(ctx, query, runID, iteration, status, message)
	if err != nil {
		return fmt.Errorf("finish checkpoint %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish checkpoint %s: iteration %d not found", runID, iteration)
	}
	return nil
}

// Get retrieves a checkpoint record by run ID.
func (s *CheckpointStore) Get(ctx context.Context, runID string) (*durable.Checkpoint, error) {
	query := `
		SELECT run_id, workflow, iteration, version, args, status, wake_at, last_error, updated_at
		FROM checkpoints
		WHERE run_id = $1
	`

	cp, err := scanCheckpoint(s.pool.QueryRow(ctx, query, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

func scanCheckpoint(row pgx.Row) (*durable.Checkpoint, error) {
	var (
		cp   durable.Checkpoint
		args []byte
	)
	err := row.Scan(
		&cp.RunID, &cp.Workflow, &cp.Iteration, &cp.Version,
		&args, &cp.Status, &cp.WakeAt, &cp.LastError, &cp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cp.Args = args
	return &cp, nil
}
