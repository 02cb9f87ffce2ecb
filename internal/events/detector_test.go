package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error", LogFormat: "json"})
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func obsSeries(start time.Time, fractions ...float64) []Observation {
	out := make([]Observation, len(fractions))
	for i, f := range fractions {
		out[i] = Observation{Date: start.AddDate(0, 0, i*7), Fraction: f}
	}
	return out
}

func TestDetectSingleStepDown(t *testing.T) {
	d := NewDetector(0.5, testLogger())

	start := day(2024, 1, 1)
	series := obsSeries(start, 0.6, 0.55, 0.52, 0.3)

	clusters := d.Detect("0001067983", "037833100", series)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, series[3].Date, c.AnchorDate, "anchor is the first observation below threshold")
	assert.Equal(t, 3, c.PreLength)

	preMean := (0.6 + 0.55 + 0.52) / 3
	assert.InDelta(t, preMean, c.PreMean, 1e-9)
	assert.InDelta(t, 0.3-preMean, c.Delta, 1e-9)
}

func TestDetectNoRunNoCluster(t *testing.T) {
	d := NewDetector(0.5, testLogger())

	// Drop without a prior qualifying run
	clusters := d.Detect("cik", "cusip", obsSeries(day(2024, 1, 1), 0.3, 0.2, 0.1))
	assert.Empty(t, clusters)

	// All above threshold, never drops
	clusters = d.Detect("cik", "cusip", obsSeries(day(2024, 1, 1), 0.6, 0.7, 0.8))
	assert.Empty(t, clusters)

	clusters = d.Detect("cik", "cusip", nil)
	assert.Empty(t, clusters)
}

func TestDetectMultipleTransitions(t *testing.T) {
	d := NewDetector(0.5, testLogger())

	// Two qualifying transitions: each produces its own cluster, no merging
	series := obsSeries(day(2024, 1, 1), 0.6, 0.3, 0.7, 0.65, 0.2)
	clusters := d.Detect("cik", "cusip", series)
	require.Len(t, clusters, 2)

	assert.Equal(t, series[1].Date, clusters[0].AnchorDate)
	assert.Equal(t, 1, clusters[0].PreLength)
	assert.Equal(t, series[4].Date, clusters[1].AnchorDate)
	assert.Equal(t, 2, clusters[1].PreLength)
}

func TestDetectBoundaryAtThreshold(t *testing.T) {
	d := NewDetector(0.5, testLogger())

	// Exactly at threshold counts as held, not dropped
	series := obsSeries(day(2024, 1, 1), 0.5, 0.5, 0.49)
	clusters := d.Detect("cik", "cusip", series)
	require.Len(t, clusters, 1)
	assert.Equal(t, 2, clusters[0].PreLength)
}

func TestClusterIDDeterministic(t *testing.T) {
	a := ClusterID("0001067983", "037833100", day(2024, 3, 15))
	b := ClusterID("0001067983", "037833100", day(2024, 3, 15))
	c := ClusterID("0001067983", "037833100", day(2024, 3, 16))

	assert.Equal(t, a, b, "recomputation must reproduce identical ids")
	assert.NotEqual(t, a, c)
}

func TestDetectFromHoldingsOrderIndependent(t *testing.T) {
	d := NewDetector(0.5, testLogger())

	points := []*contracts.HoldingPoint{
		{CIK: "b", CUSIP: "x", Date: day(2024, 2, 1), Fraction: 0.2},
		{CIK: "a", CUSIP: "x", Date: day(2024, 1, 1), Fraction: 0.6},
		{CIK: "a", CUSIP: "x", Date: day(2024, 2, 1), Fraction: 0.1},
		{CIK: "b", CUSIP: "x", Date: day(2024, 1, 1), Fraction: 0.7},
	}

	first := d.DetectFromHoldings(points)

	// Same points, shuffled
	shuffled := []*contracts.HoldingPoint{points[2], points[0], points[3], points[1]}
	second := d.DetectFromHoldings(shuffled)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i], "detection must be deterministic in input order")
	}
	assert.Len(t, first, 2)
}

func TestStudyEngine(t *testing.T) {
	engine := NewStudyEngine(StudyWindows{PreDays: 14, PostDays: 14})

	anchor := day(2024, 3, 1)
	cluster := &contracts.DumpEventCluster{ClusterID: "c1", AnchorDate: anchor}

	series := []Observation{
		{Date: anchor.AddDate(0, 0, -10), Fraction: 0.6},
		{Date: anchor.AddDate(0, 0, -3), Fraction: 0.5},
		{Date: anchor, Fraction: 0.3},
		{Date: anchor.AddDate(0, 0, 7), Fraction: 0.2},
		// Outside both windows; ignored
		{Date: anchor.AddDate(0, 0, -30), Fraction: 0.9},
		{Date: anchor.AddDate(0, 0, 30), Fraction: 0.1},
	}

	study := engine.Run(cluster, series)
	require.False(t, study.Insufficient)

	assert.Equal(t, 2, study.PreCount)
	assert.Equal(t, 2, study.PostCount)
	assert.InDelta(t, 0.55, study.PreAvg, 1e-9)
	assert.InDelta(t, 0.25, study.PostAvg, 1e-9)
}

func TestStudyEngineInsufficientData(t *testing.T) {
	engine := NewStudyEngine(DefaultStudyWindows)
	cluster := &contracts.DumpEventCluster{ClusterID: "c1", AnchorDate: day(2024, 3, 1)}

	// No observations in the pre window
	series := []Observation{
		{Date: day(2024, 3, 5), Fraction: 0.2},
	}

	study := engine.Run(cluster, series)
	assert.True(t, study.Insufficient)
	assert.Zero(t, study.PreAvg)

	study = engine.Run(cluster, nil)
	assert.True(t, study.Insufficient)
}
