package events

import (
	"fmt"
	"sort"
	"time"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/logger"
)

// DefaultHighThreshold marks an observation as "held" when the position is
// at or above half of the reference baseline.
const DefaultHighThreshold = 0.5

// Detector scans holdings time series for step-down clusters that anchor
// event studies.
type Detector struct {
	threshold float64
	logger    *logger.Logger
}

// NewDetector creates a detector with the given high threshold.
func NewDetector(threshold float64, log *logger.Logger) *Detector {
	if threshold <= 0 {
		threshold = DefaultHighThreshold
	}
	return &Detector{
		threshold: threshold,
		logger:    log.WithField("module", "events"),
	}
}

// Observation is one dated fractional position size.
type Observation struct {
	Date     time.Time
	Fraction float64
}

// Detect scans an ordered-by-date series for maximal runs of observations at
// or above the threshold immediately followed by a drop below it. The drop
// date is the anchor; delta is post minus the mean of the qualifying run. A
// drop without a prior qualifying run produces no cluster. Each qualifying
// transition produces its own cluster; clusters are never merged.
func (d *Detector) Detect(sellerCIK, cusip string, series []Observation) []*contracts.DumpEventCluster {
	var clusters []*contracts.DumpEventCluster

	runStart := -1
	for i, obs := range series {
		if obs.Fraction >= d.threshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}

		// Below threshold: a preceding run makes this a qualifying transition.
		if runStart >= 0 {
			preLen := i - runStart
			preMean := 0.0
			for _, pre := range series[runStart:i] {
				preMean += pre.Fraction
			}
			preMean /= float64(preLen)

			clusters = append(clusters, &contracts.DumpEventCluster{
				ClusterID:  ClusterID(sellerCIK, cusip, obs.Date),
				SellerCIK:  sellerCIK,
				CUSIP:      cusip,
				AnchorDate: obs.Date,
				Delta:      obs.Fraction - preMean,
				PreLength:  preLen,
				PreMean:    preMean,
			})
		}
		runStart = -1
	}

	if len(clusters) > 0 {
		d.logger.WithFields(map[string]interface{}{
			"seller":   sellerCIK,
			"cusip":    cusip,
			"clusters": len(clusters),
		}).Debug("Detected dump events")
	}

	return clusters
}

// DetectFromHoldings groups a holdings series by manager and runs detection
// per (manager, cusip) series.
func (d *Detector) DetectFromHoldings(points []*contracts.HoldingPoint) []*contracts.DumpEventCluster {
	type key struct{ cik, cusip string }
	grouped := make(map[key][]Observation)

	for _, p := range points {
		k := key{p.CIK, p.CUSIP}
		grouped[k] = append(grouped[k], Observation{Date: p.Date, Fraction: p.Fraction})
	}

	keys := make([]key, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	// Deterministic output order regardless of map iteration
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cik != keys[j].cik {
			return keys[i].cik < keys[j].cik
		}
		return keys[i].cusip < keys[j].cusip
	})

	var clusters []*contracts.DumpEventCluster
	for _, k := range keys {
		series := grouped[k]
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		clusters = append(clusters, d.Detect(k.cik, k.cusip, series)...)
	}

	return clusters
}

// ClusterID is deterministic in (seller, cusip, anchor) so recomputation
// over identical inputs reproduces identical rows.
func ClusterID(sellerCIK, cusip string, anchor time.Time) string {
	return fmt.Sprintf("%s-%s-%s", sellerCIK, cusip, anchor.Format("20060102"))
}
