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

// ClusterRepository implements contracts.ClusterRepository on Postgres.
type ClusterRepository struct {
	pool *pgxpool.Pool
}

// NewClusterRepository creates a new cluster repository
func NewClusterRepository(pool *pgxpool.Pool) *ClusterRepository {
	return &ClusterRepository{pool: pool}
}

// Upsert writes a cluster keyed by its deterministic cluster ID. A recompute
// over the same inputs produces the same row.
func (r *ClusterRepository) Upsert(ctx context.Context, cluster *contracts.DumpEventCluster) error {
	query := `
		INSERT INTO dump_event_clusters
			(cluster_id, seller_cik, cusip, anchor_date, delta, pre_len, pre_mean)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (cluster_id) DO UPDATE SET
			delta = EXCLUDED.delta,
			pre_len = EXCLUDED.pre_len,
			pre_mean = EXCLUDED.pre_mean
	`

	_, err := r.pool.Exec(ctx, query,
		cluster.ClusterID, cluster.SellerCIK, cluster.CUSIP, cluster.AnchorDate,
		cluster.Delta, cluster.PreLength, cluster.PreMean,
	)
	if err != nil {
		return fmt.Errorf("upsert cluster %s: %w", cluster.ClusterID, err)
	}
	return nil
}

// GetByID retrieves a cluster by its ID.
func (r *ClusterRepository) GetByID(ctx context.Context, clusterID string) (*contracts.DumpEventCluster, error) {
	query := clusterSelect + ` WHERE cluster_id = $1`

	c, err := scanCluster(r.pool.QueryRow(ctx, query, clusterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	return c, err
}

// GetBySellerAndRange retrieves clusters anchored in [from, to) for a seller,
// ordered by anchor date.
func (r *ClusterRepository) GetBySellerAndRange(ctx context.Context, sellerCIK string, from, to time.Time) ([]*contracts.DumpEventCluster, error) {
	query := clusterSelect + ` WHERE seller_cik = $1 AND anchor_date >= $2 AND anchor_date < $3 ORDER BY anchor_date ASC, cluster_id ASC`

	rows, err := r.pool.Query(ctx, query, sellerCIK, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []*contracts.DumpEventCluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

const clusterSelect = `
	SELECT cluster_id, seller_cik, cusip, anchor_date, delta, pre_len, pre_mean
	FROM dump_event_clusters
`

func scanCluster(row pgx.Row) (*contracts.DumpEventCluster, error) {
	var c contracts.DumpEventCluster
	err := row.Scan(
		&c.ClusterID, &c.SellerCIK, &c.CUSIP, &c.AnchorDate,
		&c.Delta, &c.PreLength, &c.PreMean,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
