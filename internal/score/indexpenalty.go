package score

import (
	"time"

	"github.com/seclens/rotograph/internal/contracts"
)

const (
	// IndexBasePenalty scales each qualifying window's overlap contribution.
	IndexBasePenalty = 0.25

	// IndexPenaltyCap bounds the total penalty regardless of how many
	// overlapping windows exist.
	IndexPenaltyCap = 0.5
)

// IndexTimingPenalty discounts position changes that overlap passive-index
// reconstitution windows, so pure index-driven rebalancing is not miscounted
// as active rotation.
//
// For every window that overlaps the quarter AND contains the anchor date,
// it adds (quarter∩window duration / quarter duration) × clamp(passiveShare,
// 0, 1) × IndexBasePenalty, then caps the sum at IndexPenaltyCap.
func IndexTimingPenalty(quarter contracts.Period, anchor time.Time, windows []contracts.IndexWindow, passiveShare float64) float64 {
	if quarter.Duration() <= 0 {
		return 0
	}

	passive := clamp(passiveShare, 0, 1)
	total := 0.0

	for _, w := range windows {
		if !windowContains(w, anchor) {
			continue
		}

		overlap := overlapDuration(quarter, w)
		if overlap <= 0 {
			continue
		}

		ratio := float64(overlap) / float64(quarter.Duration())
		total += ratio * passive * IndexBasePenalty
	}

	if total > IndexPenaltyCap {
		total = IndexPenaltyCap
	}
	return total
}

func windowContains(w contracts.IndexWindow, t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func overlapDuration(p contracts.Period, w contracts.IndexWindow) time.Duration {
	start := p.Start
	if w.Start.After(start) {
		start = w.Start
	}
	end := p.End
	if w.End.Before(end) {
		end = w.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
