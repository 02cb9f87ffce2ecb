package score

import (
	"math"

	"github.com/seclens/rotograph/internal/contracts"
)

// Overlay scores normalize raw microstructure observations into [-1, 1]
// with tanh, so a handful of extreme weeks cannot dominate the composite.

// uhfVolumeScale is the ATS volume-share change at which the UHF overlay
// saturates toward ±1.
const uhfVolumeScale = 0.15

// UHFOverlay scores the change in dark-pool volume share across the period:
// rising ATS share while a holder exits suggests absorbed flow rather than
// open-market dumping.
func UHFOverlay(points []*contracts.ATSWeeklyPoint) float64 {
	if len(points) < 2 {
		return 0
	}

	first := points[0].VolumeShare
	last := points[len(points)-1].VolumeShare

	return math.Tanh((last - first) / uhfVolumeScale)
}

// OptionsOverlay averages the provider's flow scores and folds in the
// put/call ratio drift; both inputs are already normalized by the adapter.
func OptionsOverlay(points []*contracts.OptionsOverlayPoint) float64 {
	if len(points) == 0 {
		return 0
	}

	var flowSum float64
	for _, p := range points {
		flowSum += p.FlowScore
	}
	flow := flowSum / float64(len(points))

	// Put/call drift: rising put interest reads bearish.
	drift := 0.0
	if len(points) >= 2 {
		drift = -math.Tanh(points[len(points)-1].PutCall - points[0].PutCall)
	}

	return clamp(flow*0.7+drift*0.3, -1, 1)
}
