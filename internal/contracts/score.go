package contracts

import "time"

// ScoreBreakdown holds the named terms behind a composite rotation score.
// Each term is independently bounded; the index penalty is capped (see
// score.IndexPenaltyCap).
type ScoreBreakdown struct {
	UptakeSame   float64 `json:"uptake_same"`
	UptakeNext   float64 `json:"uptake_next"`
	UHFSame      float64 `json:"uhf_same"`
	UHFNext      float64 `json:"uhf_next"`
	OptSame      float64 `json:"opt_same"`
	OptNext      float64 `json:"opt_next"`
	ShortRelief  float64 `json:"short_relief"`
	IndexPenalty float64 `json:"index_penalty"`
}

// ScoreRecord is the persisted composite rotation score for one
// (issuer, period). Recomputation overwrites; it must be idempotent.
type ScoreRecord struct {
	CIK       string         `json:"cik"`
	Period    Period         `json:"period"`
	Composite float64        `json:"composite"` // clamped to [-1, 1]
	Breakdown ScoreBreakdown `json:"breakdown"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// UptakeBreakdown carries the passive/active split the index-timing
// penalty depends on.
type UptakeBreakdown struct {
	Same         float64 `json:"same"`
	Next         float64 `json:"next"`
	PassiveShare float64 `json:"passive_share"` // [0,1], clamped by the penalty
	ActiveShare  float64 `json:"active_share"`
}

// IndexWindowPhase marks where an index-event window sits relative to the
// reconstitution effective date.
type IndexWindowPhase string

const (
	PhaseAnnounce  IndexWindowPhase = "announce"
	PhaseEffective IndexWindowPhase = "effective"
	PhaseDrift     IndexWindowPhase = "drift"
)

// IndexWindow is one passive-index reconstitution window.
type IndexWindow struct {
	Phase IndexWindowPhase `json:"phase"`
	Start time.Time        `json:"start"`
	End   time.Time        `json:"end"`
}
