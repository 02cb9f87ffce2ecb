package finra

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/httputil"
	"github.com/seclens/rotograph/pkg/logger"
	"github.com/seclens/rotograph/pkg/redis"
)

// Client handles communication with the FINRA Query API for short interest
// and weekly ATS (dark pool) volume datasets.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new FINRA client.
func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	hc := httputil.New(cfg, log).WithLocalRateLimit(100.0/60.0, 5)
	if cfg.FINRA.APIKey != "" {
		hc.WithHeader("Authorization", "Bearer "+cfg.FINRA.APIKey)
	}

	return &Client{
		httpClient: hc,
		logger:     log.WithField("module", "finra"),
		baseURL:    strings.TrimRight(cfg.FINRA.BaseURL, "/"),
	}
}

// WithRateLimiter switches to the shared Redis limiter.
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter) *Client {
	c.httpClient.WithRateLimiter(limiter, redis.FINRARateLimit)
	return c
}

// query is the FINRA Query API request envelope.
type query struct {
	Limit          int             `json:"limit"`
	CompareFilters []compareFilter `json:"compareFilters,omitempty"`
	DomainFilters  []domainFilter  `json:"domainFilters,omitempty"`
}

type compareFilter struct {
	FieldName   string `json:"fieldName"`
	CompareType string `json:"compareType"` // GTE, LT
	FieldValue  string `json:"fieldValue"`
}

type domainFilter struct {
	FieldName string   `json:"fieldName"`
	Values    []string `json:"values"`
}

type shortInterestRow struct {
	SettlementDate string          `json:"settlementDate"`
	CUSIP          string          `json:"cusip"`
	ShortPosition  decimal.Decimal `json:"currentShortPositionQuantity"`
	PctOfFloat     float64         `json:"shortPercentOfFloat"`
}

type atsWeeklyRow struct {
	WeekStart   string          `json:"weekStartDate"`
	CUSIP       string          `json:"cusip"`
	TotalShares decimal.Decimal `json:"totalWeeklyShareQuantity"`
	TotalTrades int64           `json:"totalWeeklyTradeCount"`
	MarketPct   float64         `json:"weeklyMarketPercent"`
}

// FetchShortInterest returns bi-monthly short interest points for the CUSIP
// inside the period, ordered by settlement date.
func (c *Client) FetchShortInterest(ctx context.Context, cusip string, period contracts.Period) ([]*contracts.ShortInterestPoint, error) {
	if cusip == "" {
		return nil, fmt.Errorf("%w: empty CUSIP", contracts.ErrInputInvalid)
	}

	var rows []shortInterestRow
	if err := c.runQuery(ctx, "consolidatedShortInterest", "settlementDate", cusip, period, &rows); err != nil {
		return nil, err
	}

	points := make([]*contracts.ShortInterestPoint, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.SettlementDate)
		if err != nil {
			return nil, contracts.Terminal(fmt.Errorf("short interest: bad settlement date %q", row.SettlementDate))
		}
		points = append(points, &contracts.ShortInterestPoint{
			CUSIP:       row.CUSIP,
			Date:        date,
			ShortShares: row.ShortPosition,
			FloatShare:  row.PctOfFloat / 100,
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// FetchATSWeekly returns weekly ATS volume points for the CUSIP inside the
// period, ordered by week start.
func (c *Client) FetchATSWeekly(ctx context.Context, cusip string, period contracts.Period) ([]*contracts.ATSWeeklyPoint, error) {
	if cusip == "" {
		return nil, fmt.Errorf("%w: empty CUSIP", contracts.ErrInputInvalid)
	}

	var rows []atsWeeklyRow
	if err := c.runQuery(ctx, "weeklySummary", "weekStartDate", cusip, period, &rows); err != nil {
		return nil, err
	}

	points := make([]*contracts.ATSWeeklyPoint, 0, len(rows))
	for _, row := range rows {
		weekStart, err := time.Parse("2006-01-02", row.WeekStart)
		if err != nil {
			return nil, contracts.Terminal(fmt.Errorf("ats weekly: bad week start %q", row.WeekStart))
		}
		points = append(points, &contracts.ATSWeeklyPoint{
			CUSIP:       row.CUSIP,
			WeekStart:   weekStart,
			TotalShares: row.TotalShares,
			TotalTrades: row.TotalTrades,
			VolumeShare: row.MarketPct / 100,
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].WeekStart.Before(points[j].WeekStart) })
	return points, nil
}

func (c *Client) runQuery(ctx context.Context, dataset, dateField, cusip string, period contracts.Period, out interface{}) error {
	body := query{
		Limit: 1000,
		CompareFilters: []compareFilter{
			{FieldName: dateField, CompareType: "GTE", FieldValue: period.Start.Format("2006-01-02")},
			{FieldName: dateField, CompareType: "LT", FieldValue: period.End.Format("2006-01-02")},
		},
		DomainFilters: []domainFilter{
			{FieldName: "cusip", Values: []string{cusip}},
		},
	}

	url := c.baseURL + "/data/group/otcMarket/name/" + dataset
	resp, err := c.httpClient.PostJSON(ctx, url, body)
	if err != nil {
		return contracts.Retryable(fmt.Errorf("query %s: %w", dataset, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		// No rows for the filter; some datasets 404 instead of returning []
		return nil
	}
	if resp.StatusCode != 200 {
		err := fmt.Errorf("query %s: status %d", dataset, resp.StatusCode)
		if httputil.IsRetryableError(resp.StatusCode) {
			return contracts.Retryable(err)
		}
		return contracts.Terminal(err)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return contracts.Terminal(fmt.Errorf("decode %s: %w", dataset, err))
	}
	return nil
}
