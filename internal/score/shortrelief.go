package score

import (
	"math"

	"github.com/seclens/rotograph/internal/contracts"
)

// shortReliefScale is the relative short-interest decline at which the
// relief term saturates toward 1.
const shortReliefScale = 0.5

// ShortRelief scores the decline in short interest across the period.
// Falling short interest while a large holder exits is evidence the position
// is being absorbed (shorts covering into the supply), so more relief pushes
// the composite up. Output is bounded to [-1, 1]; rising short interest
// scores negative.
func ShortRelief(points []*contracts.ShortInterestPoint) float64 {
	if len(points) < 2 {
		return 0
	}

	first := points[0].FloatShare
	last := points[len(points)-1].FloatShare
	if first <= 0 {
		return 0
	}

	decline := (first - last) / first
	return math.Tanh(decline / shortReliefScale)
}
