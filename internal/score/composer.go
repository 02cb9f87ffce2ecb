package score

import (
	"time"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/logger"
)

// Composer reduces a signal bundle plus contextual breakdown values into a
// bounded composite rotation score. Given identical inputs it always
// produces the same record: no clocks, no randomness, no I/O.
type Composer struct {
	weights Weights
	logger  *logger.Logger
}

// NewComposer creates a composer with the given weight configuration.
func NewComposer(weights Weights, log *logger.Logger) *Composer {
	return &Composer{
		weights: weights,
		logger:  log.WithField("module", "score"),
	}
}

// Inputs carries everything one composition needs besides the bundle.
type Inputs struct {
	Uptake       contracts.UptakeBreakdown
	ShortRelief  float64
	UHFSame      float64
	UHFNext      float64
	OptSame      float64
	OptNext      float64
	Anchor       time.Time
	IndexWindows []contracts.IndexWindow
}

// Compose builds the ScoreRecord for one (issuer, period). The composite is
// a weighted combination of the breakdown terms minus the index-timing
// penalty, clamped to [-1, 1]. UpdatedAt is left zero; the store stamps it.
func (c *Composer) Compose(bundle *contracts.SignalBundle, in Inputs) *contracts.ScoreRecord {
	w := c.weights

	penalty := IndexTimingPenalty(bundle.Period, in.Anchor, in.IndexWindows, in.Uptake.PassiveShare)

	uptake := in.Uptake.Same*w.SameShare + in.Uptake.Next*(1-w.SameShare)
	uhf := in.UHFSame*w.SameShare + in.UHFNext*(1-w.SameShare)
	opt := in.OptSame*w.SameShare + in.OptNext*(1-w.SameShare)

	composite := uptake*w.Uptake +
		in.ShortRelief*w.ShortRelief +
		uhf*w.UHF +
		opt*w.Options -
		penalty
	composite = clamp(composite, -1, 1)

	record := &contracts.ScoreRecord{
		CIK:       bundle.CIK,
		Period:    bundle.Period,
		Composite: composite,
		Breakdown: contracts.ScoreBreakdown{
			UptakeSame:   in.Uptake.Same,
			UptakeNext:   in.Uptake.Next,
			UHFSame:      in.UHFSame,
			UHFNext:      in.UHFNext,
			OptSame:      in.OptSame,
			OptNext:      in.OptNext,
			ShortRelief:  in.ShortRelief,
			IndexPenalty: penalty,
		},
	}

	c.logger.WithFields(map[string]interface{}{
		"cik":       bundle.CIK,
		"period":    bundle.Period.Start.Format("2006-01-02"),
		"composite": composite,
		"penalty":   penalty,
	}).Debug("Composed rotation score")

	return record
}
