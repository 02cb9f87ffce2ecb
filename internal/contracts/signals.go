package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period is a quarter-aligned [Start, End) range, the unit of fan-out.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Duration returns the period length.
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// SignalBundle holds the normalized raw signals for one (issuer, period)
// fan-out unit. Produced once per unit, immutable once persisted.
type SignalBundle struct {
	CIK    string `json:"cik"`
	Period Period `json:"period"`

	HoldingsDelta   float64 `json:"holdings_delta"`    // signed fractional position change
	ShortInterest   float64 `json:"short_interest"`    // level, shares short / float
	ATSWeeklyVolume float64 `json:"ats_weekly_volume"` // dark-pool share of volume
	OptionsOverlay  float64 `json:"options_overlay"`   // normalized overlay score
	UHFOverlay      float64 `json:"uhf_overlay"`       // high-frequency overlay score

	FetchedAccessions []string `json:"fetched_accessions,omitempty"`
}

// HoldingPoint is one observation of a manager's fractional position in an
// issuer, ordered by report date.
type HoldingPoint struct {
	CIK        string          `json:"cik"` // manager CIK
	CUSIP      string          `json:"cusip"`
	Date       time.Time       `json:"date"`
	Fraction   float64         `json:"fraction"` // position / reference baseline
	Shares     decimal.Decimal `json:"shares"`
	ValueUSD   decimal.Decimal `json:"value_usd"` // 13F values are reported in $thousands
	Accession  string          `json:"accession,omitempty"`
	FilingKind string          `json:"filing_kind,omitempty"` // 13F, 13G, 13D
}

// ShortInterestPoint is one bi-monthly FINRA short interest observation.
type ShortInterestPoint struct {
	CUSIP       string          `json:"cusip"`
	Date        time.Time       `json:"date"`
	ShortShares decimal.Decimal `json:"short_shares"`
	FloatShare  float64         `json:"float_share"` // short shares / float
}

// ATSWeeklyPoint is one weekly FINRA ATS (dark pool) volume observation.
type ATSWeeklyPoint struct {
	CUSIP       string          `json:"cusip"`
	WeekStart   time.Time       `json:"week_start"`
	TotalShares decimal.Decimal `json:"total_shares"`
	TotalTrades int64           `json:"total_trades"`
	VolumeShare float64         `json:"volume_share"` // ATS volume / consolidated volume
}

// OptionsOverlayPoint is one normalized options-flow observation.
type OptionsOverlayPoint struct {
	CUSIP     string    `json:"cusip"`
	Date      time.Time `json:"date"`
	PutCall   float64   `json:"put_call"` // put/call open-interest ratio
	FlowScore float64   `json:"flow_score"`
}

// Filing is one disclosure reference returned by the filing index.
type Filing struct {
	CIK       string    `json:"cik"`
	Accession string    `json:"accession"`
	Kind      string    `json:"kind"` // 13F-HR, SC 13G, SC 13D, ...
	FiledAt   time.Time `json:"filed_at"`
	Name      string    `json:"name"` // filer display name
}
