package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/external/edgar"
	"github.com/seclens/rotograph/internal/external/finra"
	"github.com/seclens/rotograph/internal/external/optionsflow"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/logger"
	"github.com/seclens/rotograph/pkg/redis"
)

// Gateway composes the provider clients behind the uniform fetch interface.
// All provider selection happens here at construction; callers never see
// which upstream served a signal.
type Gateway struct {
	edgar   *edgar.Client
	finra   *finra.Client
	options optionsflow.Provider
	cache   *redis.Cache
	logger  *logger.Logger
}

var _ contracts.SignalFetchGateway = (*Gateway)(nil)

// New builds a gateway from configuration.
func New(cfg *config.Config, log *logger.Logger) (*Gateway, error) {
	options, err := optionsflow.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build options provider: %w", err)
	}

	return &Gateway{
		edgar:   edgar.NewClient(cfg, log),
		finra:   finra.NewClient(cfg, log),
		options: options,
		logger:  log.WithField("module", "gateway"),
	}, nil
}

// WithRateLimiter shares one Redis limiter across all provider clients.
func (g *Gateway) WithRateLimiter(limiter *redis.RateLimiter) *Gateway {
	g.edgar.WithRateLimiter(limiter)
	g.finra.WithRateLimiter(limiter)
	return g
}

// WithCache memoizes issuer resolution. Resolution hits EDGAR's full
// company-ticker table, so even an hour of caching removes most lookups.
func (g *Gateway) WithCache(cache *redis.Cache) *Gateway {
	g.cache = cache
	return g
}

func (g *Gateway) ResolveIssuer(ctx context.Context, ticker string) (*contracts.Issuer, error) {
	if g.cache != nil {
		var cached contracts.Issuer
		found, err := g.cache.Get(ctx, redis.IssuerKey(ticker), &cached)
		if err != nil {
			g.logger.WithError(err).Warn("issuer cache read failed")
		}
		if found {
			return &cached, nil
		}
	}

	issuer, err := g.edgar.ResolveIssuer(ctx, ticker)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, redis.IssuerKey(ticker), issuer, redis.TTLLong); err != nil {
			g.logger.WithError(err).Warn("issuer cache write failed")
		}
	}
	return issuer, nil
}

func (g *Gateway) FetchFilingIndex(ctx context.Context, cik string, period contracts.Period) ([]*contracts.Filing, error) {
	return g.edgar.FetchFilingIndex(ctx, cik, period)
}

func (g *Gateway) FetchHoldings(ctx context.Context, cik string, cusips []string, period contracts.Period) ([]*contracts.HoldingPoint, error) {
	return g.edgar.FetchHoldings(ctx, cik, cusips, period)
}

func (g *Gateway) FetchShortInterest(ctx context.Context, cusip string, period contracts.Period) ([]*contracts.ShortInterestPoint, error) {
	return g.finra.FetchShortInterest(ctx, cusip, period)
}

func (g *Gateway) FetchATSWeekly(ctx context.Context, cusip string, period contracts.Period) ([]*contracts.ATSWeeklyPoint, error) {
	return g.finra.FetchATSWeekly(ctx, cusip, period)
}

func (g *Gateway) FetchOptionsOverlay(ctx context.Context, cusip string, period contracts.Period) ([]*contracts.OptionsOverlayPoint, error) {
	return g.options.FetchOptionsOverlay(ctx, cusip, period)
}

func (g *Gateway) FetchNewSubmissions(ctx context.Context, windowStart, windowEnd time.Time) ([]*contracts.Filing, time.Time, error) {
	return g.edgar.FetchNewSubmissions(ctx, windowStart, windowEnd)
}
