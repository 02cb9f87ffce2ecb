package contracts

import (
	"context"
	"time"
)

// SignalFetchGateway is the uniform interface over external data sources.
// Every call is idempotent and side-effect-free on pipeline state; callers
// classify failures via IsRetryable / IsTerminal.
type SignalFetchGateway interface {
	// ResolveIssuer maps a ticker to its issuer identity.
	ResolveIssuer(ctx context.Context, ticker string) (*Issuer, error)

	// FetchFilingIndex lists ownership filings touching the issuer in the period.
	FetchFilingIndex(ctx context.Context, cik string, period Period) ([]*Filing, error)

	// FetchHoldings returns the ordered holdings series for the issuer's
	// CUSIPs across the period, one point per (manager, report date).
	FetchHoldings(ctx context.Context, cik string, cusips []string, period Period) ([]*HoldingPoint, error)

	// FetchShortInterest returns bi-monthly short interest points in the period.
	FetchShortInterest(ctx context.Context, cusip string, period Period) ([]*ShortInterestPoint, error)

	// FetchATSWeekly returns weekly dark-pool volume points in the period.
	FetchATSWeekly(ctx context.Context, cusip string, period Period) ([]*ATSWeeklyPoint, error)

	// FetchOptionsOverlay returns options-flow overlay points in the period.
	FetchOptionsOverlay(ctx context.Context, cusip string, period Period) ([]*OptionsOverlayPoint, error)

	// FetchNewSubmissions returns filings submitted in [windowStart, windowEnd)
	// plus the provider's next-cursor hint.
	FetchNewSubmissions(ctx context.Context, windowStart, windowEnd time.Time) ([]*Filing, time.Time, error)
}

// EdgePublisher receives rotation edges as they are built, for live feeds.
type EdgePublisher interface {
	PublishEdge(edge *RotationEdge)
}
