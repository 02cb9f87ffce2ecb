package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/logger"
)

// MaxHops bounds neighborhood traversal depth.
const MaxHops = 6

// maxTopPaths caps the ranked path list in a query result.
const maxTopPaths = 10

// Finder answers neighborhood queries over the persisted edge set. It is a
// bounded breadth-first traversal, never a live computation over raw filings.
type Finder struct {
	issuers  contracts.IssuerRepository
	entities contracts.EntityRepository
	edges    contracts.EdgeRepository
	logger   *logger.Logger
}

// NewFinder creates a graph query finder.
func NewFinder(issuers contracts.IssuerRepository, entities contracts.EntityRepository, edges contracts.EdgeRepository, log *logger.Logger) *Finder {
	return &Finder{
		issuers:  issuers,
		entities: entities,
		edges:    edges,
		logger:   log.WithField("module", "graph"),
	}
}

// ResolveNeighborhood returns the issuer's rotation neighborhood: nodes and
// edges reachable within hops directed steps inside [from, to), plus ranked
// top paths.
func (f *Finder) ResolveNeighborhood(ctx context.Context, tickerOrCIK string, from, to time.Time, hops int) (*contracts.Neighborhood, error) {
	if tickerOrCIK == "" {
		return nil, fmt.Errorf("%w: ticker or CIK is required", contracts.ErrInputInvalid)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty time window", contracts.ErrInputInvalid)
	}
	if hops < 1 || hops > MaxHops {
		return nil, fmt.Errorf("%w: hops must be in [1, %d]", contracts.ErrInputInvalid, MaxHops)
	}

	issuer, err := f.resolve(ctx, tickerOrCIK)
	if err != nil {
		return nil, err
	}

	// Hop 1: edges in the issuer's CUSIPs inside the window
	seed, err := f.edges.GetByCUSIPs(ctx, issuer.CUSIPs, from, to)
	if err != nil {
		return nil, fmt.Errorf("load seed edges: %w", err)
	}

	edgeSet := make(map[int64]*contracts.RotationEdge)
	frontier := make(map[string]bool)
	for _, e := range seed {
		edgeSet[e.ID] = e
		frontier[e.SellerCIK] = true
		frontier[e.ReceiverCIK] = true
	}

	// Hops 2..n: follow outgoing edges from the frontier
	visited := make(map[string]bool)
	for hop := 2; hop <= hops; hop++ {
		next := make(map[string]bool)
		for cik := range frontier {
			if visited[cik] || cik == contracts.MarketEntityCIK {
				continue
			}
			visited[cik] = true

			out, err := f.edges.GetOutgoing(ctx, cik, from, to)
			if err != nil {
				return nil, fmt.Errorf("expand hop %d: %w", hop, err)
			}
			for _, e := range out {
				if _, ok := edgeSet[e.ID]; !ok {
					edgeSet[e.ID] = e
					next[e.ReceiverCIK] = true
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}

	edges := make([]*contracts.RotationEdge, 0, len(edgeSet))
	for _, e := range edgeSet {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	nodes, err := f.loadNodes(ctx, edges)
	if err != nil {
		return nil, err
	}

	paths := rankPaths(seed, edgeSet, hops)

	result := &contracts.Neighborhood{
		Issuer:   issuer,
		Nodes:    nodes,
		TopPaths: paths,
	}
	for _, e := range edges {
		result.Edges = append(result.Edges, *e)
	}

	return result, nil
}

func (f *Finder) resolve(ctx context.Context, tickerOrCIK string) (*contracts.Issuer, error) {
	if issuer, err := f.issuers.GetByTicker(ctx, tickerOrCIK); err == nil {
		return issuer, nil
	}
	issuer, err := f.issuers.GetByCIK(ctx, tickerOrCIK)
	if err != nil {
		return nil, fmt.Errorf("resolve issuer %q: %w", tickerOrCIK, err)
	}
	return issuer, nil
}

func (f *Finder) loadNodes(ctx context.Context, edges []*contracts.RotationEdge) ([]contracts.Entity, error) {
	cikSet := make(map[string]bool)
	for _, e := range edges {
		cikSet[e.SellerCIK] = true
		cikSet[e.ReceiverCIK] = true
	}

	ciks := make([]string, 0, len(cikSet))
	for cik := range cikSet {
		if cik == contracts.MarketEntityCIK {
			continue
		}
		ciks = append(ciks, cik)
	}
	sort.Strings(ciks)

	found, err := f.entities.GetByCIKs(ctx, ciks)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}

	nodes := make([]contracts.Entity, 0, len(found)+1)
	for _, e := range found {
		nodes = append(nodes, *e)
	}
	if cikSet[contracts.MarketEntityCIK] {
		nodes = append(nodes, contracts.Entity{
			CIK:  contracts.MarketEntityCIK,
			Kind: contracts.EntityKindManager,
			Name: "Open market",
		})
	}
	return nodes, nil
}

// rankPaths enumerates simple directed paths starting from the seed edges,
// ranked by aggregate edge weight; ties break on shorter path length, then
// earliest anchor date.
func rankPaths(seed []*contracts.RotationEdge, edgeSet map[int64]*contracts.RotationEdge, hops int) []contracts.GraphPath {
	outgoing := make(map[string][]*contracts.RotationEdge)
	for _, e := range edgeSet {
		outgoing[e.SellerCIK] = append(outgoing[e.SellerCIK], e)
	}
	for cik := range outgoing {
		sort.Slice(outgoing[cik], func(i, j int) bool { return outgoing[cik][i].ID < outgoing[cik][j].ID })
	}

	var paths []contracts.GraphPath

	var walk func(path []*contracts.RotationEdge, onPath map[string]bool)
	walk = func(path []*contracts.RotationEdge, onPath map[string]bool) {
		paths = append(paths, toGraphPath(path))

		if len(path) >= hops {
			return
		}

		tip := path[len(path)-1].ReceiverCIK
		if tip == contracts.MarketEntityCIK || onPath[tip] {
			return
		}
		onPath[tip] = true
		for _, e := range outgoing[tip] {
			if onPath[e.ReceiverCIK] && e.ReceiverCIK != contracts.MarketEntityCIK {
				continue
			}
			walk(append(path, e), onPath)
		}
		delete(onPath, tip)
	}

	sortedSeed := make([]*contracts.RotationEdge, len(seed))
	copy(sortedSeed, seed)
	sort.Slice(sortedSeed, func(i, j int) bool { return sortedSeed[i].ID < sortedSeed[j].ID })

	for _, e := range sortedSeed {
		walk([]*contracts.RotationEdge{e}, map[string]bool{e.SellerCIK: true})
	}

	sort.Slice(paths, func(i, j int) bool {
		if paths[i].TotalWeight != paths[j].TotalWeight {
			return paths[i].TotalWeight > paths[j].TotalWeight
		}
		if paths[i].Hops != paths[j].Hops {
			return paths[i].Hops < paths[j].Hops
		}
		return paths[i].EarliestDate.Before(paths[j].EarliestDate)
	})

	if len(paths) > maxTopPaths {
		paths = paths[:maxTopPaths]
	}
	return paths
}

func toGraphPath(edges []*contracts.RotationEdge) contracts.GraphPath {
	p := contracts.GraphPath{Hops: len(edges)}
	p.NodeCIKs = append(p.NodeCIKs, edges[0].SellerCIK)

	for i, e := range edges {
		p.EdgeIDs = append(p.EdgeIDs, e.ID)
		p.NodeCIKs = append(p.NodeCIKs, e.ReceiverCIK)
		p.TotalWeight += e.Weight
		if i == 0 || e.AnchorDate.Before(p.EarliestDate) {
			p.EarliestDate = e.AnchorDate
		}
	}
	return p
}
