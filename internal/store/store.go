package store

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/durable"
)

// Store bundles every repository over one connection pool.
type Store struct {
	Entities     *EntityRepository
	Issuers      *IssuerRepository
	Bundles      *SignalBundleRepository
	Scores       *ScoreRepository
	Clusters     *ClusterRepository
	Edges        *EdgeRepository
	Cursors      *CursorRepository
	Checkpoints  *CheckpointStore
	Explanations *ExplanationRepository
}

// New wires all repositories onto the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Entities:     NewEntityRepository(pool),
		Issuers:      NewIssuerRepository(pool),
		Bundles:      NewSignalBundleRepository(pool),
		Scores:       NewScoreRepository(pool),
		Clusters:     NewClusterRepository(pool),
		Edges:        NewEdgeRepository(pool),
		Cursors:      NewCursorRepository(pool),
		Checkpoints:  NewCheckpointStore(pool),
		Explanations: NewExplanationRepository(pool),
	}
}

var (
	_ contracts.EntityRepository       = (*EntityRepository)(nil)
	_ contracts.IssuerRepository       = (*IssuerRepository)(nil)
	_ contracts.SignalBundleRepository = (*SignalBundleRepository)(nil)
	_ contracts.ScoreRepository        = (*ScoreRepository)(nil)
	_ contracts.ClusterRepository      = (*ClusterRepository)(nil)
	_ contracts.EdgeRepository         = (*EdgeRepository)(nil)
	_ contracts.CursorRepository       = (*CursorRepository)(nil)
	_ contracts.ExplanationRepository  = (*ExplanationRepository)(nil)
	_ durable.CheckpointStore          = (*CheckpointStore)(nil)
)
