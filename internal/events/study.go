package events

import (
	"time"

	"github.com/seclens/rotograph/internal/contracts"
)

// StudyWindows configures the pre/post spans around an anchor. Lengths are
// configuration, not constants, so each signal type can be tuned separately.
type StudyWindows struct {
	PreDays  int
	PostDays int
}

// DefaultStudyWindows is a symmetric four-week study.
var DefaultStudyWindows = StudyWindows{PreDays: 28, PostDays: 28}

// StudyEngine computes pre/post statistics around a detected anchor date.
type StudyEngine struct {
	windows StudyWindows
}

// NewStudyEngine creates a study engine with the given windows.
func NewStudyEngine(windows StudyWindows) *StudyEngine {
	if windows.PreDays <= 0 {
		windows.PreDays = DefaultStudyWindows.PreDays
	}
	if windows.PostDays <= 0 {
		windows.PostDays = DefaultStudyWindows.PostDays
	}
	return &StudyEngine{windows: windows}
}

// Run averages the observations falling in [anchor-pre, anchor) and
// [anchor, anchor+post). Missing observations inside a window are tolerated
// by averaging only over present points; a window with zero present points
// marks the study insufficient instead of producing a numeric average.
func (e *StudyEngine) Run(cluster *contracts.DumpEventCluster, series []Observation) *contracts.EventStudy {
	anchor := cluster.AnchorDate
	preStart := anchor.AddDate(0, 0, -e.windows.PreDays)
	postEnd := anchor.AddDate(0, 0, e.windows.PostDays)

	study := &contracts.EventStudy{ClusterID: cluster.ClusterID}

	var preSum, postSum float64
	for _, obs := range series {
		switch {
		case inRange(obs.Date, preStart, anchor):
			preSum += obs.Fraction
			study.PreCount++
		case inRange(obs.Date, anchor, postEnd):
			postSum += obs.Fraction
			study.PostCount++
		}
	}

	if study.PreCount == 0 || study.PostCount == 0 {
		study.Insufficient = true
		return study
	}

	study.PreAvg = preSum / float64(study.PreCount)
	study.PostAvg = postSum / float64(study.PostCount)
	return study
}

// inRange reports start <= t < end.
func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
