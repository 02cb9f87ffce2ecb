package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/logger"
)

// Builder turns detected dump events plus scores into directed rotation
// edges. Rebuilding from the same cluster updates the existing edge; the
// idempotency key is (clusterID, cusip).
type Builder struct {
	edges     contracts.EdgeRepository
	entities  contracts.EntityRepository
	publisher contracts.EdgePublisher
	logger    *logger.Logger
}

// NewBuilder creates an edge builder. publisher may be nil.
func NewBuilder(edges contracts.EdgeRepository, entities contracts.EntityRepository, publisher contracts.EdgePublisher, log *logger.Logger) *Builder {
	return &Builder{
		edges:     edges,
		entities:  entities,
		publisher: publisher,
		logger:    log.WithField("module", "graph"),
	}
}

// BuildInput carries one cluster with its score and the holdings context
// used for counterparty attribution.
type BuildInput struct {
	Cluster  *contracts.DumpEventCluster
	Score    *contracts.ScoreRecord
	Holdings []*contracts.HoldingPoint
	Period   contracts.Period
}

// Build attributes the cluster's step-down to the most plausible
// counterparty (the manager with the largest same-period increase in the
// cluster's CUSIP), or to the market node when nobody absorbed it, then
// upserts the edge.
func (b *Builder) Build(ctx context.Context, in BuildInput) (*contracts.RotationEdge, error) {
	if in.Cluster == nil || in.Score == nil {
		return nil, fmt.Errorf("%w: cluster and score are required", contracts.ErrInputInvalid)
	}

	receiver, absorbed := b.attribute(in)

	weight := edgeWeight(in.Cluster, in.Score, absorbed)

	edge := &contracts.RotationEdge{
		ClusterID:   in.Cluster.ClusterID,
		CUSIP:       in.Cluster.CUSIP,
		SellerCIK:   in.Cluster.SellerCIK,
		ReceiverCIK: receiver,
		Weight:      weight,
		WindowStart: in.Period.Start,
		WindowEnd:   in.Period.End,
		AnchorDate:  in.Cluster.AnchorDate,
	}

	stored, err := b.edges.Upsert(ctx, edge)
	if err != nil {
		return nil, fmt.Errorf("upsert rotation edge: %w", err)
	}

	if b.publisher != nil {
		b.publisher.PublishEdge(stored)
	}

	b.logger.WithFields(map[string]interface{}{
		"cluster":  stored.ClusterID,
		"seller":   stored.SellerCIK,
		"receiver": stored.ReceiverCIK,
		"weight":   stored.Weight,
	}).Debug("Built rotation edge")

	return stored, nil
}

// attribute returns the receiver CIK and the fraction it absorbed. Ties on
// absorbed size break on CIK so attribution is deterministic.
func (b *Builder) attribute(in BuildInput) (string, float64) {
	type gain struct {
		cik   string
		delta float64
	}

	first := make(map[string]float64)
	last := make(map[string]float64)
	seen := make(map[string]bool)

	for _, p := range in.Holdings {
		if p.CUSIP != in.Cluster.CUSIP || p.CIK == in.Cluster.SellerCIK {
			continue
		}
		if !in.Period.Contains(p.Date) {
			continue
		}
		if !seen[p.CIK] {
			first[p.CIK] = p.Fraction
			seen[p.CIK] = true
		}
		last[p.CIK] = p.Fraction
	}

	var gains []gain
	for cik := range seen {
		if d := last[cik] - first[cik]; d > 0 {
			gains = append(gains, gain{cik: cik, delta: d})
		}
	}
	if len(gains) == 0 {
		return contracts.MarketEntityCIK, 0
	}

	sort.Slice(gains, func(i, j int) bool {
		if gains[i].delta != gains[j].delta {
			return gains[i].delta > gains[j].delta
		}
		return gains[i].cik < gains[j].cik
	})

	return gains[0].cik, gains[0].delta
}

// edgeWeight scales the magnitude of the step-down by how strongly the
// composite score reads as rotation. Attributed absorption adds weight over
// an unattributed market exit.
func edgeWeight(cluster *contracts.DumpEventCluster, score *contracts.ScoreRecord, absorbed float64) float64 {
	magnitude := cluster.Delta
	if magnitude < 0 {
		magnitude = -magnitude
	}

	base := magnitude + absorbed
	return base * (1 + score.Composite) / 2
}
