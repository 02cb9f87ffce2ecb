package contracts

import (
	"context"
	"time"
)

// Repository interfaces are defined here and implemented in internal/store.
// All writes are natural-key upserts so retried or re-run units of work are
// safe to repeat.

// EntityRepository manages graph nodes keyed by (CIK, series, kind).
type EntityRepository interface {
	Upsert(ctx context.Context, entity *Entity) (*Entity, error)
	GetByKey(ctx context.Context, cik, series string, kind EntityKind) (*Entity, error)
	GetByCIKs(ctx context.Context, ciks []string) ([]*Entity, error)
}

// IssuerRepository manages issuer identity and CUSIP appends.
type IssuerRepository interface {
	Upsert(ctx context.Context, issuer *Issuer) error
	GetByCIK(ctx context.Context, cik string) (*Issuer, error)
	GetByTicker(ctx context.Context, ticker string) (*Issuer, error)
	GetByCUSIP(ctx context.Context, cusip string) (*Issuer, error)
	AppendCUSIPs(ctx context.Context, cik string, cusips []string) error
}

// SignalBundleRepository persists the per-(issuer, period) signal bundles.
type SignalBundleRepository interface {
	Upsert(ctx context.Context, bundle *SignalBundle) error
	GetByPeriod(ctx context.Context, cik string, periodStart time.Time) (*SignalBundle, error)
	GetByRange(ctx context.Context, cik string, from, to time.Time) ([]*SignalBundle, error)
}

// ScoreRepository persists composite scores; Upsert overwrites by (cik, period).
type ScoreRepository interface {
	Upsert(ctx context.Context, record *ScoreRecord) error
	GetByPeriod(ctx context.Context, cik string, periodStart time.Time) (*ScoreRecord, error)
	GetByRange(ctx context.Context, cik string, from, to time.Time) ([]*ScoreRecord, error)
}

// ClusterRepository persists detected dump-event clusters.
type ClusterRepository interface {
	Upsert(ctx context.Context, cluster *DumpEventCluster) error
	GetByID(ctx context.Context, clusterID string) (*DumpEventCluster, error)
	GetBySellerAndRange(ctx context.Context, sellerCIK string, from, to time.Time) ([]*DumpEventCluster, error)
}

// EdgeRepository persists rotation edges; Upsert is keyed by (clusterID, cusip).
type EdgeRepository interface {
	Upsert(ctx context.Context, edge *RotationEdge) (*RotationEdge, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*RotationEdge, error)
	GetByCluster(ctx context.Context, clusterID string) ([]*RotationEdge, error)
	GetByCUSIPs(ctx context.Context, cusips []string, from, to time.Time) ([]*RotationEdge, error)
	GetOutgoing(ctx context.Context, cik string, from, to time.Time) ([]*RotationEdge, error)
	GetTouching(ctx context.Context, cik string, from, to time.Time) ([]*RotationEdge, error)
}

// CursorRepository persists ingestion watermarks. Advance must be a no-op
// when the stored watermark is already at or past the new value.
type CursorRepository interface {
	Get(ctx context.Context, pipeline PipelineKind, key string) (*IngestionCursor, error)
	Advance(ctx context.Context, pipeline PipelineKind, key string, watermark time.Time) error
	Reset(ctx context.Context, pipeline PipelineKind, key string, since time.Time) error
}

// ExplanationRepository persists generated edge explanations.
type ExplanationRepository interface {
	Save(ctx context.Context, explanation *Explanation) error
	GetByID(ctx context.Context, id string) (*Explanation, error)
}
