package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seclens/rotograph/internal/durable"
)

// StartFanout validates args and enqueues a fan-out run as a fresh pending
// checkpoint, immediately due. Returns the run id.
func StartFanout(ctx context.Context, store durable.CheckpointStore, args FanoutArgs) (string, error) {
	if err := args.Validate(); err != nil {
		return "", err
	}

	raw, err := durable.MarshalArgs(args)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	cp := &durable.Checkpoint{
		RunID:     runID,
		Workflow:  FanoutWorkflow,
		Iteration: 0,
		Version:   durable.CheckpointVersion,
		Args:      raw,
		Status:    durable.StatusPending,
		WakeAt:    time.Now().UTC(),
	}
	if err := store.Create(ctx, cp); err != nil {
		return "", fmt.Errorf("enqueue fanout run: %w", err)
	}
	return runID, nil
}

// StartPoller enqueues a submission poller loop. One poller per source;
// the run id is derived from the source so a second start is rejected by
// the store's primary key instead of spawning a duplicate loop.
func StartPoller(ctx context.Context, store durable.CheckpointStore, args PollerArgs) (string, error) {
	if err := args.Validate(); err != nil {
		return "", err
	}

	raw, err := durable.MarshalArgs(args)
	if err != nil {
		return "", err
	}

	runID := "poller-" + args.Source
	cp := &durable.Checkpoint{
		RunID:     runID,
		Workflow:  PollerWorkflow,
		Iteration: 0,
		Version:   durable.CheckpointVersion,
		Args:      raw,
		Status:    durable.StatusPending,
		WakeAt:    time.Now().UTC(),
	}
	if err := store.Create(ctx, cp); err != nil {
		return "", fmt.Errorf("enqueue poller: %w", err)
	}
	return runID, nil
}
