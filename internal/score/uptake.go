package score

import (
	"github.com/seclens/rotograph/internal/contracts"
)

// UptakeInputs aggregates the holdings movements an uptake calculation needs:
// how much the seller shed, and how much other filers absorbed in the same
// and next period, split passive/active.
type UptakeInputs struct {
	SellerReduction float64 // absolute fractional reduction, > 0 for a real dump
	SameAbsorbed    float64 // other filers' increases in the dump period
	NextAbsorbed    float64 // other filers' increases in the following period
	PassiveAbsorbed float64 // portion of SameAbsorbed attributed to passive filers
}

// Uptake computes the fraction of the seller's reduced position absorbed by
// other filers, per period. Each fraction is clamped to [0,1]; a zero
// reduction yields zero uptake rather than a division blowup.
func Uptake(in UptakeInputs) contracts.UptakeBreakdown {
	var out contracts.UptakeBreakdown
	if in.SellerReduction <= 0 {
		return out
	}

	out.Same = clamp(in.SameAbsorbed/in.SellerReduction, 0, 1)
	out.Next = clamp(in.NextAbsorbed/in.SellerReduction, 0, 1)

	if in.SameAbsorbed > 0 {
		out.PassiveShare = clamp(in.PassiveAbsorbed/in.SameAbsorbed, 0, 1)
	}
	out.ActiveShare = 1 - out.PassiveShare

	return out
}

// UptakeFromHoldings derives UptakeInputs from a holdings series: the
// seller's largest step-down inside the period and the increases every other
// manager reported in the same and next period. Managers in passiveCIKs are
// counted toward the passive share.
func UptakeFromHoldings(points []*contracts.HoldingPoint, sellerCIK string, period, next contracts.Period, passiveCIKs map[string]bool) UptakeInputs {
	var in UptakeInputs

	// Per-manager deltas inside each period, in fraction-of-baseline units.
	type series struct {
		first, last float64
		seen        bool
	}
	deltas := func(p contracts.Period) map[string]float64 {
		byManager := make(map[string]*series)
		for _, pt := range points {
			if !p.Contains(pt.Date) {
				continue
			}
			s, ok := byManager[pt.CIK]
			if !ok {
				s = &series{first: pt.Fraction}
				byManager[pt.CIK] = s
			}
			s.last = pt.Fraction
			s.seen = true
		}
		out := make(map[string]float64, len(byManager))
		for cik, s := range byManager {
			if s.seen {
				out[cik] = s.last - s.first
			}
		}
		return out
	}

	same := deltas(period)
	following := deltas(next)

	if d, ok := same[sellerCIK]; ok && d < 0 {
		in.SellerReduction = -d
	}

	for cik, d := range same {
		if cik == sellerCIK || d <= 0 {
			continue
		}
		in.SameAbsorbed += d
		if passiveCIKs[cik] {
			in.PassiveAbsorbed += d
		}
	}

	for cik, d := range following {
		if cik == sellerCIK || d <= 0 {
			continue
		}
		in.NextAbsorbed += d
	}

	return in
}
