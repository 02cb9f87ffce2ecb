package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seclens/rotograph/internal/contracts"
)

// EdgeRepository implements contracts.EdgeRepository on Postgres.
type EdgeRepository struct {
	pool *pgxpool.Pool
}

// NewEdgeRepository creates a new edge repository
func NewEdgeRepository(pool *pgxpool.Pool) *EdgeRepository {
	return &EdgeRepository{pool: pool}
}

// Upsert writes an edge keyed by (cluster_id, cusip) and returns the stored
// row with its assigned ID. Recomputation keeps the original ID.
func (r *EdgeRepository) Upsert(ctx context.Context, edge *contracts.RotationEdge) (*contracts.RotationEdge, error) {
	query := `
		INSERT INTO rotation_edges
			(cluster_id, cusip, seller_cik, receiver_cik, weight,
			 window_start, window_end, anchor_date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (cluster_id, cusip) DO UPDATE SET
			seller_cik = EXCLUDED.seller_cik,
			receiver_cik = EXCLUDED.receiver_cik,
			weight = EXCLUDED.weight,
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			anchor_date = EXCLUDED.anchor_date,
			updated_at = NOW()
		RETURNING id, cluster_id, cusip, seller_cik, receiver_cik, weight,
		          window_start, window_end, anchor_date
	`

	out, err := scanEdge(r.pool.QueryRow(ctx, query,
		edge.ClusterID, edge.CUSIP, edge.SellerCIK, edge.ReceiverCIK, edge.Weight,
		edge.WindowStart, edge.WindowEnd, edge.AnchorDate,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert edge %s/%s: %w", edge.ClusterID, edge.CUSIP, err)
	}
	return out, nil
}

// GetByIDs retrieves edges by ID, ordered by ID.
func (r *EdgeRepository) GetByIDs(ctx context.Context, ids []int64) ([]*contracts.RotationEdge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, edgeSelect+` WHERE id = ANY($1) ORDER BY id ASC`, ids)
}

// GetByCluster retrieves all edges produced by one cluster.
func (r *EdgeRepository) GetByCluster(ctx context.Context, clusterID string) ([]*contracts.RotationEdge, error) {
	return r.list(ctx, edgeSelect+` WHERE cluster_id = $1 ORDER BY cusip ASC`, clusterID)
}

// GetByCUSIPs retrieves edges on any of the CUSIPs anchored in [from, to).
func (r *EdgeRepository) GetByCUSIPs(ctx context.Context, cusips []string, from, to time.Time) ([]*contracts.RotationEdge, error) {
	if len(cusips) == 0 {
		return nil, nil
	}
	query := edgeSelect + ` WHERE cusip = ANY($1) AND anchor_date >= $2 AND anchor_date < $3 ORDER BY anchor_date ASC, id ASC`
	return r.list(ctx, query, cusips, from, to)
}

// GetOutgoing retrieves edges leaving a node, anchored in [from, to).
func (r *EdgeRepository) GetOutgoing(ctx context.Context, cik string, from, to time.Time) ([]*contracts.RotationEdge, error) {
	query := edgeSelect + ` WHERE seller_cik = $1 AND anchor_date >= $2 AND anchor_date < $3 ORDER BY anchor_date ASC, id ASC`
	return r.list(ctx, query, cik, from, to)
}

// GetTouching retrieves edges on either side of a node, anchored in [from, to).
func (r *EdgeRepository) GetTouching(ctx context.Context, cik string, from, to time.Time) ([]*contracts.RotationEdge, error) {
	query := edgeSelect + ` WHERE (seller_cik = $1 OR receiver_cik = $1) AND anchor_date >= $2 AND anchor_date < $3 ORDER BY anchor_date ASC, id ASC`
	return r.list(ctx, query, cik, from, to)
}

func (r *EdgeRepository) list(ctx context.Context, query string, args ...any) ([]*contracts.RotationEdge, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*contracts.RotationEdge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

const edgeSelect = `
	SELECT id, cluster_id, cusip, seller_cik, receiver_cik, weight,
	       window_start, window_end, anchor_date
	FROM rotation_edges
`

func scanEdge(row pgx.Row) (*contracts.RotationEdge, error) {
	var e contracts.RotationEdge
	err := row.Scan(
		&e.ID, &e.ClusterID, &e.CUSIP, &e.SellerCIK, &e.ReceiverCIK, &e.Weight,
		&e.WindowStart, &e.WindowEnd, &e.AnchorDate,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
