package explain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/logger"
)

// MaxExplainEdges bounds how many edges one explanation may cover.
const MaxExplainEdges = 20

const systemPrompt = "You are an analyst summarizing institutional ownership rotation. " +
	"Explain the evidence plainly, cite the filing accession numbers you are given, " +
	"and never speculate beyond the listed facts."

// Service generates and persists narratives for rotation edges.
type Service struct {
	edges        contracts.EdgeRepository
	clusters     contracts.ClusterRepository
	issuers      contracts.IssuerRepository
	bundles      contracts.SignalBundleRepository
	entities     contracts.EntityRepository
	explanations contracts.ExplanationRepository
	model        Model
	logger       *logger.Logger
}

// NewService wires the explanation collaborator.
func NewService(
	edges contracts.EdgeRepository,
	clusters contracts.ClusterRepository,
	issuers contracts.IssuerRepository,
	bundles contracts.SignalBundleRepository,
	entities contracts.EntityRepository,
	explanations contracts.ExplanationRepository,
	model Model,
	log *logger.Logger,
) *Service {
	return &Service{
		edges:        edges,
		clusters:     clusters,
		issuers:      issuers,
		bundles:      bundles,
		entities:     entities,
		explanations: explanations,
		model:        model,
		logger:       log.WithField("module", "explain"),
	}
}

// Explain builds an evidence prompt for the edges, asks the model for a
// narrative, and persists the result with the accessions it cites.
func (s *Service) Explain(ctx context.Context, edgeIDs []int64, question string) (*contracts.Explanation, error) {
	if len(edgeIDs) == 0 {
		return nil, fmt.Errorf("%w: no edge ids", contracts.ErrInputInvalid)
	}
	if len(edgeIDs) > MaxExplainEdges {
		return nil, fmt.Errorf("%w: %d edge ids, limit %d", contracts.ErrInputInvalid, len(edgeIDs), MaxExplainEdges)
	}

	edges, err := s.edges.GetByIDs(ctx, edgeIDs)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	if len(edges) != len(dedupeIDs(edgeIDs)) {
		return nil, fmt.Errorf("%w: unknown edge id", contracts.ErrNotFound)
	}

	accessions, evidence, err := s.gatherEvidence(ctx, edges)
	if err != nil {
		return nil, err
	}

	prompt := s.buildPrompt(evidence, accessions, question)
	content, err := s.model.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate explanation: %w", err)
	}

	explanation := &contracts.Explanation{
		ID:         uuid.NewString(),
		EdgeIDs:    append([]int64(nil), edgeIDs...),
		Question:   question,
		Content:    content,
		Accessions: accessions,
		Model:      s.model.Name(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.explanations.Save(ctx, explanation); err != nil {
		return nil, fmt.Errorf("save explanation: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"explanation_id": explanation.ID,
		"edges":          len(edges),
		"accessions":     len(accessions),
	}).Info("Explanation generated")

	return explanation, nil
}

// Get retrieves a previously generated explanation.
func (s *Service) Get(ctx context.Context, id string) (*contracts.Explanation, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty explanation id", contracts.ErrInputInvalid)
	}
	return s.explanations.GetByID(ctx, id)
}

// edgeEvidence is one edge rendered with its resolved names and cluster stats.
type edgeEvidence struct {
	line string
}

func (s *Service) gatherEvidence(ctx context.Context, edges []*contracts.RotationEdge) ([]string, []edgeEvidence, error) {
	names := s.resolveNames(ctx, edges)

	accessionSet := make(map[string]struct{})
	evidence := make([]edgeEvidence, 0, len(edges))

	for _, edge := range edges {
		cluster, err := s.clusters.GetByID(ctx, edge.ClusterID)
		if err != nil {
			return nil, nil, fmt.Errorf("load cluster %s: %w", edge.ClusterID, err)
		}

		for _, acc := range s.bundleAccessions(ctx, edge) {
			accessionSet[acc] = struct{}{}
		}

		receiver := names[edge.ReceiverCIK]
		if edge.ReceiverCIK == contracts.MarketEntityCIK {
			receiver = "the open market"
		}
		evidence = append(evidence, edgeEvidence{line: fmt.Sprintf(
			"%s cut its position in CUSIP %s by %.1f%% of its prior stake around %s; the offsetting uptake is attributed to %s (edge weight %.3f, window %s to %s).",
			names[edge.SellerCIK], edge.CUSIP, -cluster.Delta*100,
			edge.AnchorDate.Format("2006-01-02"), receiver, edge.Weight,
			edge.WindowStart.Format("2006-01-02"), edge.WindowEnd.Format("2006-01-02"),
		)})
	}

	accessions := make([]string, 0, len(accessionSet))
	for acc := range accessionSet {
		accessions = append(accessions, acc)
	}
	sort.Strings(accessions)
	return accessions, evidence, nil
}

// bundleAccessions returns the filing accessions fetched for the issuer of
// the edge's CUSIP over the edge window. Missing issuers or bundles are not
// errors; the narrative just cites less.
func (s *Service) bundleAccessions(ctx context.Context, edge *contracts.RotationEdge) []string {
	issuer, err := s.issuers.GetByCUSIP(ctx, edge.CUSIP)
	if err != nil {
		if !errors.Is(err, contracts.ErrNotFound) {
			s.logger.WithError(err).Warn("Issuer lookup failed")
		}
		return nil
	}

	bundles, err := s.bundles.GetByRange(ctx, issuer.CIK, edge.WindowStart, edge.WindowEnd)
	if err != nil {
		s.logger.WithError(err).Warn("Bundle lookup failed")
		return nil
	}

	var out []string
	for _, b := range bundles {
		out = append(out, b.FetchedAccessions...)
	}
	return out
}

func (s *Service) resolveNames(ctx context.Context, edges []*contracts.RotationEdge) map[string]string {
	cikSet := make(map[string]struct{})
	for _, e := range edges {
		cikSet[e.SellerCIK] = struct{}{}
		cikSet[e.ReceiverCIK] = struct{}{}
	}
	ciks := make([]string, 0, len(cikSet))
	for cik := range cikSet {
		ciks = append(ciks, cik)
	}
	sort.Strings(ciks)

	names := make(map[string]string, len(ciks))
	for _, cik := range ciks {
		names[cik] = cik
	}

	entities, err := s.entities.GetByCIKs(ctx, ciks)
	if err != nil {
		s.logger.WithError(err).Warn("Entity name lookup failed")
		return names
	}
	for _, e := range entities {
		if e.Name != "" {
			names[e.CIK] = e.Name
		}
	}
	return names
}

func (s *Service) buildPrompt(evidence []edgeEvidence, accessions []string, question string) string {
	var b strings.Builder
	b.WriteString("Observed rotation evidence:\n")
	for i, ev := range evidence {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ev.line)
	}

	if len(accessions) > 0 {
		b.WriteString("\nSource filings: ")
		b.WriteString(strings.Join(accessions, ", "))
		b.WriteString("\n")
	}

	if question != "" {
		b.WriteString("\nQuestion: ")
		b.WriteString(question)
		b.WriteString("\n")
	} else {
		b.WriteString("\nSummarize what rotated, to whom, and how strong the evidence is.\n")
	}
	return b.String()
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
