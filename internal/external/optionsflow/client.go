package optionsflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/pkg/config"
	"github.com/seclens/rotograph/pkg/httputil"
	"github.com/seclens/rotograph/pkg/logger"
)

// ProviderKind is a closed tag; adding a provider means adding a case to
// New. Unknown tags are rejected at construction, not at fetch time.
type ProviderKind string

const (
	// KindNone disables the overlay; fetches return no points.
	KindNone ProviderKind = "none"
	// KindRest is a generic JSON flow API selected by OPTIONS_BASE_URL.
	KindRest ProviderKind = "rest"
)

// ErrUnsupportedProvider rejects a provider tag New has no case for.
var ErrUnsupportedProvider = errors.New("unsupported options provider")

// Provider fetches normalized options-flow overlay points.
type Provider interface {
	FetchOptionsOverlay(ctx context.Context, cusip string, period contracts.Period) ([]*contracts.OptionsOverlayPoint, error)
}

// New constructs the provider selected by configuration.
func New(cfg *config.Config, log *logger.Logger) (Provider, error) {
	switch ProviderKind(cfg.Options.Provider) {
	case KindNone:
		return noneProvider{}, nil
	case KindRest:
		if cfg.Options.BaseURL == "" {
			return nil, fmt.Errorf("%w: rest provider requires OPTIONS_BASE_URL", contracts.ErrInputInvalid)
		}
		return newRestClient(cfg, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Options.Provider)
	}
}

// noneProvider is the disabled overlay; scoring treats missing points as a
// neutral overlay.
type noneProvider struct{}

func (noneProvider) FetchOptionsOverlay(_ context.Context, _ string, _ contracts.Period) ([]*contracts.OptionsOverlayPoint, error) {
	return nil, nil
}

type restClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

func newRestClient(cfg *config.Config, log *logger.Logger) *restClient {
	hc := httputil.New(cfg, log).WithLocalRateLimit(5, 5)
	if cfg.Options.APIKey != "" {
		hc.WithHeader("X-Api-Key", cfg.Options.APIKey)
	}

	return &restClient{
		httpClient: hc,
		logger:     log.WithField("module", "optionsflow"),
		baseURL:    strings.TrimRight(cfg.Options.BaseURL, "/"),
	}
}

type flowRow struct {
	Date      string  `json:"date"`
	PutCall   float64 `json:"put_call_ratio"`
	FlowScore float64 `json:"flow_score"`
}

func (c *restClient) FetchOptionsOverlay(ctx context.Context, cusip string, period contracts.Period) ([]*contracts.OptionsOverlayPoint, error) {
	if cusip == "" {
		return nil, fmt.Errorf("%w: empty CUSIP", contracts.ErrInputInvalid)
	}

	q := url.Values{}
	q.Set("cusip", cusip)
	q.Set("from", period.Start.Format("2006-01-02"))
	q.Set("to", period.End.Format("2006-01-02"))

	resp, err := c.httpClient.Get(ctx, c.baseURL+"/v1/flow?"+q.Encode())
	if err != nil {
		return nil, contracts.Retryable(fmt.Errorf("fetch options flow: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		err := fmt.Errorf("options flow: status %d", resp.StatusCode)
		if httputil.IsRetryableError(resp.StatusCode) {
			return nil, contracts.Retryable(err)
		}
		return nil, contracts.Terminal(err)
	}

	var rows []flowRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, contracts.Terminal(fmt.Errorf("decode options flow: %w", err))
	}

	points := make([]*contracts.OptionsOverlayPoint, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, contracts.Terminal(fmt.Errorf("options flow: bad date %q", row.Date))
		}
		points = append(points, &contracts.OptionsOverlayPoint{
			CUSIP:     cusip,
			Date:      date,
			PutCall:   row.PutCall,
			FlowScore: row.FlowScore,
		})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
