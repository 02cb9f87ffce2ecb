package contracts

import "time"

// RotationEdge is a directed, time-stamped fact that a seller's position
// decreased while evidence attributes the offsetting change to a counterparty
// or the open market. Append-only history; superseded only via a new cluster.
// At most one edge exists per (ClusterID, CUSIP).
type RotationEdge struct {
	ID          int64     `json:"id"`
	ClusterID   string    `json:"cluster_id"`
	CUSIP       string    `json:"cusip"`
	SellerCIK   string    `json:"seller_cik"`
	ReceiverCIK string    `json:"receiver_cik"` // MarketEntityCIK when unattributed
	Weight      float64   `json:"weight"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	AnchorDate  time.Time `json:"anchor_date"`
}

// GraphPath is one ranked seller→...→receiver chain in a neighborhood result.
type GraphPath struct {
	EdgeIDs      []int64   `json:"edge_ids"`
	NodeCIKs     []string  `json:"node_ciks"`
	TotalWeight  float64   `json:"total_weight"`
	Hops         int       `json:"hops"`
	EarliestDate time.Time `json:"earliest_date"`
}

// Neighborhood is the bounded BFS result for a graph query.
type Neighborhood struct {
	Issuer   *Issuer        `json:"issuer"`
	Nodes    []Entity       `json:"nodes"`
	Edges    []RotationEdge `json:"edges"`
	TopPaths []GraphPath    `json:"top_paths"`
}

// Explanation is a generated narrative for a set of edges, with the filing
// accessions cited as evidence.
type Explanation struct {
	ID         string    `json:"id"`
	EdgeIDs    []int64   `json:"edge_ids"`
	Question   string    `json:"question,omitempty"`
	Content    string    `json:"content"`
	Accessions []string  `json:"accessions"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}
