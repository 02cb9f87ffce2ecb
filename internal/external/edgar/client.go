package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/httputil"
	"github.com/seclens/rotograph/pkg/logger"
	"github.com/seclens/rotograph/pkg/redis"
)

// Client handles communication with SEC EDGAR. The SEC enforces fair-access
// limits and rejects requests without a descriptive User-Agent, so every
// request goes through the shared rate-limited HTTP client.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	pageSize   int
}

// NewClient creates a new EDGAR client.
func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	hc := httputil.New(cfg, log).
		WithHeader("User-Agent", cfg.EDGAR.UserAgent).
		WithLocalRateLimit(8, 8)

	pageSize := cfg.EDGAR.PageSize
	if pageSize < 1 {
		pageSize = 100
	}

	return &Client{
		httpClient: hc,
		logger:     log.WithField("module", "edgar"),
		baseURL:    strings.TrimRight(cfg.EDGAR.BaseURL, "/"),
		pageSize:   pageSize,
	}
}

// WithRateLimiter switches to the shared Redis limiter so multiple processes
// stay under the SEC's aggregate budget.
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter) *Client {
	c.httpClient.WithRateLimiter(limiter, redis.EDGARRateLimit)
	return c
}

// tickerEntry is one row of EDGAR's company_tickers.json map.
type tickerEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// ResolveIssuer maps a ticker symbol to its issuer identity.
func (c *Client) ResolveIssuer(ctx context.Context, ticker string) (*contracts.Issuer, error) {
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", contracts.ErrInputInvalid)
	}

	url := c.baseURL + "/files/company_tickers.json"
	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, contracts.Retryable(fmt.Errorf("fetch company tickers: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, classifyStatus(resp.StatusCode, "company tickers")
	}

	var entries map[string]tickerEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, contracts.Terminal(fmt.Errorf("decode company tickers: %w", err))
	}

	upper := strings.ToUpper(ticker)
	for _, e := range entries {
		if strings.ToUpper(e.Ticker) == upper {
			// Resolved is stamped by the caller against its own clock.
			return &contracts.Issuer{
				CIK:    PadCIK(e.CIK),
				Ticker: upper,
				Name:   e.Title,
			}, nil
		}
	}

	return nil, fmt.Errorf("resolve ticker %q: %w", ticker, contracts.ErrNotFound)
}

// PadCIK formats a numeric CIK as the zero-padded 10-digit form EDGAR uses.
func PadCIK(cik int64) string {
	return fmt.Sprintf("%010d", cik)
}

// classifyStatus maps an EDGAR HTTP status to the pipeline error taxonomy.
// 429 and 5xx are transient; everything else will not fix itself on retry.
func classifyStatus(status int, what string) error {
	err := fmt.Errorf("edgar %s: status %d", what, status)
	if httputil.IsRetryableError(status) {
		return contracts.Retryable(err)
	}
	return contracts.Terminal(err)
}
