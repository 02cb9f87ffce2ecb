package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/seclens/rotograph/internal/contracts"
	"github.com/seclens/rotograph/internal/durable"
	"github.com/seclens/rotograph/pkg/logger"
)

// PollerWorkflow is the checkpoint registry name of the submission poller.
const PollerWorkflow = "poller"

// PollerArgs is the poller's entire resumable state. The cursor carried
// here is also mirrored into the ingestion cursor table after each cycle.
type PollerArgs struct {
	Source   string        `json:"source"` // cursor key, e.g. "edgar"
	Lookback time.Duration `json:"lookback"`
	Cadence  time.Duration `json:"cadence"`
	Cursor   time.Time     `json:"cursor,omitempty"`
}

// Poller tails continuously-arriving submissions: fetch a window, persist,
// advance the watermark, sleep, checkpoint. It has no terminal condition;
// every cycle ends in a continuation.
type Poller struct {
	gateway  contracts.SignalFetchGateway
	entities contracts.EntityRepository
	cursors  contracts.CursorRepository
	logger   *logger.Logger
}

// NewPoller creates the submission poller.
func NewPoller(gateway contracts.SignalFetchGateway, entities contracts.EntityRepository, cursors contracts.CursorRepository, log *logger.Logger) *Poller {
	return &Poller{
		gateway:  gateway,
		entities: entities,
		cursors:  cursors,
		logger:   log.WithField("module", "poller"),
	}
}

// Validate rejects malformed poller arguments.
func (a PollerArgs) Validate() error {
	if a.Source == "" {
		return fmt.Errorf("%w: source is required", contracts.ErrInputInvalid)
	}
	if a.Lookback <= 0 {
		return fmt.Errorf("%w: lookback must be positive", contracts.ErrInputInvalid)
	}
	if a.Cadence <= 0 {
		return fmt.Errorf("%w: cadence must be positive", contracts.ErrInputInvalid)
	}
	return nil
}

// Execute runs one poll cycle. The window start is the prior cursor, or
// now-lookback on the first cycle; the new cursor is the max of the
// provider's hint and the window end, and never moves backwards.
func (p *Poller) Execute(ctx context.Context, rt durable.Runtime, raw json.RawMessage) (durable.Outcome, error) {
	var args PollerArgs
	if err := durable.DecodeArgs(raw, &args); err != nil {
		return durable.Outcome{}, contracts.Terminal(err)
	}
	if err := args.Validate(); err != nil {
		return durable.Outcome{}, contracts.Terminal(err)
	}

	windowEnd := rt.Now().UTC()
	windowStart := args.Cursor
	if windowStart.IsZero() {
		windowStart = windowEnd.Add(-args.Lookback)
	}
	if !windowEnd.After(windowStart) {
		// Clock has not passed the cursor yet; just sleep
		return durable.ContinueAfter(args, args.Cadence), nil
	}

	var (
		filings []*contracts.Filing
		hint    time.Time
	)
	err := rt.Call(ctx, "fetch_submissions", durable.DefaultFetchPolicy, func(ctx context.Context) error {
		got, h, err := p.gateway.FetchNewSubmissions(ctx, windowStart, windowEnd)
		if err != nil {
			return err
		}
		filings, hint = got, h
		return nil
	})
	if err != nil {
		return durable.Outcome{}, err
	}

	for _, filing := range filings {
		if filing.CIK == "" {
			continue
		}
		entity := &contracts.Entity{
			CIK:  filing.CIK,
			Kind: contracts.EntityKindManager,
			Name: filing.Name,
		}
		if err := rt.Call(ctx, "upsert_filer", durable.DefaultPersistPolicy, func(ctx context.Context) error {
			_, err := p.entities.Upsert(ctx, entity)
			return err
		}); err != nil {
			return durable.Outcome{}, err
		}
	}

	newCursor := windowEnd
	if hint.After(newCursor) {
		newCursor = hint
	}
	if newCursor.Before(args.Cursor) {
		newCursor = args.Cursor
	}

	if err := rt.Call(ctx, "advance_cursor", durable.DefaultPersistPolicy, func(ctx context.Context) error {
		return p.cursors.Advance(ctx, contracts.PipelinePoller, args.Source, newCursor)
	}); err != nil {
		return durable.Outcome{}, err
	}

	p.logger.WithFields(map[string]interface{}{
		"source":  args.Source,
		"window":  windowStart.Format(time.RFC3339) + ".." + windowEnd.Format(time.RFC3339),
		"filings": len(filings),
		"cursor":  newCursor.Format(time.RFC3339),
	}).Info("Poll cycle complete")

	args.Cursor = newCursor
	return durable.ContinueAfter(args, args.Cadence), nil
}
