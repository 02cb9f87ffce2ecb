package contracts

import "time"

// Issuer is a filer-of-record whose ownership rotation we track.
// Identity (CIK + optional series) is immutable after first resolution;
// CUSIPs may be appended as new filings reference them.
type Issuer struct {
	CIK      string    `json:"cik"`
	Series   string    `json:"series,omitempty"`
	Ticker   string    `json:"ticker"`
	Name     string    `json:"name"`
	CUSIPs   []string  `json:"cusips"`
	Resolved time.Time `json:"resolved"`
}

// EntityKind distinguishes node types in the rotation graph.
type EntityKind string

const (
	EntityKindManager EntityKind = "manager"
	EntityKindIssuer  EntityKind = "issuer"
)

// Entity is an institutional holder or issuer node in the rotation graph.
// Uniquely keyed by (CIK, series-or-empty, kind); seeding is an idempotent upsert.
type Entity struct {
	ID     int64      `json:"id"`
	CIK    string     `json:"cik"`
	Series string     `json:"series"`
	Kind   EntityKind `json:"kind"`
	Name   string     `json:"name"`
	Ticker string     `json:"ticker,omitempty"`
}

// MarketEntityCIK is the synthetic node edges point at when no counterparty
// can be attributed to an observed position step-down.
const MarketEntityCIK = "MARKET"

// Key returns the natural identity of the entity.
func (e *Entity) Key() string {
	return e.CIK + "|" + e.Series + "|" + string(e.Kind)
}
