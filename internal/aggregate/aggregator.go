package aggregate

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/score"
	"github.com/seclens/rotograph/pkg/logger"
)

// Aggregator merges the gateway's outputs for one (issuer, period) fan-out
// unit into a normalized signal bundle. Sub-signal fetches run concurrently
// but the result is all-or-nothing: the composer never sees a partial unit.
type Aggregator struct {
	gateway contracts.SignalFetchGateway
	logger  *logger.Logger
}

// NewAggregator creates a signal aggregator.
func NewAggregator(gateway contracts.SignalFetchGateway, log *logger.Logger) *Aggregator {
	return &Aggregator{
		gateway: gateway,
		logger:  log.WithField("module", "aggregate"),
	}
}

// Result is one fully-fetched fan-out unit: the normalized bundle plus the
// raw series the detector, composer, and edge builder consume downstream.
type Result struct {
	Bundle *contracts.SignalBundle

	Filings       []*contracts.Filing
	Holdings      []*contracts.HoldingPoint // spans the prior period through next
	ShortInterest []*contracts.ShortInterestPoint
	ATSSame       []*contracts.ATSWeeklyPoint
	ATSNext       []*contracts.ATSWeeklyPoint
	OptionsSame   []*contracts.OptionsOverlayPoint
	OptionsNext   []*contracts.OptionsOverlayPoint
}

// Aggregate fetches every sub-signal for the issuer across period (and the
// following period, for next-quarter uptake terms) and folds them into one
// bundle. A single failed sub-signal fails the whole unit; the error carries
// the originating signal so the run can resume from the right boundary.
func (a *Aggregator) Aggregate(ctx context.Context, issuer *contracts.Issuer, period, next contracts.Period) (*Result, error) {
	res := &Result{}

	// The holdings span reaches one period back: a step-down observed early
	// in this period only qualifies against the run that preceded it, and
	// with quarterly filings that run usually sits in the prior period.
	span := contracts.Period{Start: period.Start.AddDate(0, -3, 0), End: next.End}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		filings, err := a.gateway.FetchFilingIndex(gctx, issuer.CIK, period)
		if err != nil {
			return subRangeErr(issuer, period, "filings", err)
		}
		res.Filings = filings
		return nil
	})

	g.Go(func() error {
		holdings, err := a.gateway.FetchHoldings(gctx, issuer.CIK, issuer.CUSIPs, span)
		if err != nil {
			return subRangeErr(issuer, period, "holdings", err)
		}
		res.Holdings = holdings
		return nil
	})

	g.Go(func() error {
		points, err := a.fetchPerCUSIP(gctx, issuer, period, "short_interest")
		if err != nil {
			return err
		}
		res.ShortInterest = points
		return nil
	})

	g.Go(func() error {
		same, err := a.fetchATS(gctx, issuer, period)
		if err != nil {
			return subRangeErr(issuer, period, "ats_weekly", err)
		}
		res.ATSSame = same
		return nil
	})

	g.Go(func() error {
		points, err := a.fetchATS(gctx, issuer, next)
		if err != nil {
			return subRangeErr(issuer, period, "ats_weekly_next", err)
		}
		res.ATSNext = points
		return nil
	})

	g.Go(func() error {
		same, err := a.fetchOptions(gctx, issuer, period)
		if err != nil {
			return subRangeErr(issuer, period, "options", err)
		}
		res.OptionsSame = same
		return nil
	})

	g.Go(func() error {
		points, err := a.fetchOptions(gctx, issuer, next)
		if err != nil {
			return subRangeErr(issuer, period, "options_next", err)
		}
		res.OptionsNext = points
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Bundle = buildBundle(issuer, period, res)

	a.logger.WithFields(map[string]interface{}{
		"cik":      issuer.CIK,
		"period":   period.Start.Format("2006-01-02"),
		"filings":  len(res.Filings),
		"holdings": len(res.Holdings),
	}).Debug("Aggregated signal bundle")

	return res, nil
}

func (a *Aggregator) fetchPerCUSIP(ctx context.Context, issuer *contracts.Issuer, period contracts.Period, signal string) ([]*contracts.ShortInterestPoint, error) {
	var points []*contracts.ShortInterestPoint
	for _, cusip := range issuer.CUSIPs {
		batch, err := a.gateway.FetchShortInterest(ctx, cusip, period)
		if err != nil {
			return nil, subRangeErr(issuer, period, signal, err)
		}
		points = append(points, batch...)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func (a *Aggregator) fetchATS(ctx context.Context, issuer *contracts.Issuer, period contracts.Period) ([]*contracts.ATSWeeklyPoint, error) {
	var points []*contracts.ATSWeeklyPoint
	for _, cusip := range issuer.CUSIPs {
		batch, err := a.gateway.FetchATSWeekly(ctx, cusip, period)
		if err != nil {
			return nil, err
		}
		points = append(points, batch...)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].WeekStart.Before(points[j].WeekStart) })
	return points, nil
}

func (a *Aggregator) fetchOptions(ctx context.Context, issuer *contracts.Issuer, period contracts.Period) ([]*contracts.OptionsOverlayPoint, error) {
	var points []*contracts.OptionsOverlayPoint
	for _, cusip := range issuer.CUSIPs {
		batch, err := a.gateway.FetchOptionsOverlay(ctx, cusip, period)
		if err != nil {
			return nil, err
		}
		points = append(points, batch...)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// buildBundle folds the fetched series into the bundle's normalized scalars.
func buildBundle(issuer *contracts.Issuer, period contracts.Period, res *Result) *contracts.SignalBundle {
	bundle := &contracts.SignalBundle{
		CIK:    issuer.CIK,
		Period: period,

		HoldingsDelta:   holdingsDelta(res.Holdings, period),
		ShortInterest:   meanFloatShare(res.ShortInterest),
		ATSWeeklyVolume: meanVolumeShare(res.ATSSame),
		OptionsOverlay:  score.OptionsOverlay(res.OptionsSame),
		UHFOverlay:      score.UHFOverlay(res.ATSSame),
	}

	for _, f := range res.Filings {
		bundle.FetchedAccessions = append(bundle.FetchedAccessions, f.Accession)
	}
	sort.Strings(bundle.FetchedAccessions)

	return bundle
}

// holdingsDelta sums each manager's signed fractional change inside the
// period across all CUSIPs.
func holdingsDelta(points []*contracts.HoldingPoint, period contracts.Period) float64 {
	type series struct {
		first, last float64
		seen        bool
	}
	byHolder := make(map[string]*series)
	var keys []string

	for _, p := range points {
		if !period.Contains(p.Date) {
			continue
		}
		key := p.CIK + "|" + p.CUSIP
		s, ok := byHolder[key]
		if !ok {
			s = &series{}
			byHolder[key] = s
			keys = append(keys, key)
		}
		if !s.seen {
			s.first = p.Fraction
			s.seen = true
		}
		s.last = p.Fraction
	}

	sort.Strings(keys)
	var delta float64
	for _, key := range keys {
		s := byHolder[key]
		delta += s.last - s.first
	}
	return delta
}

func meanFloatShare(points []*contracts.ShortInterestPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.FloatShare
	}
	return sum / float64(len(points))
}

func meanVolumeShare(points []*contracts.ATSWeeklyPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.VolumeShare
	}
	return sum / float64(len(points))
}

func subRangeErr(issuer *contracts.Issuer, period contracts.Period, signal string, err error) error {
	return &contracts.SubRangeError{
		Ticker: issuer.Ticker,
		Period: period,
		Signal: signal,
		Err:    err,
	}
}
