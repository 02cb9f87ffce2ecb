package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seclens/rotograph/pkg/logger"
)

// Runner drives registered workflows over a checkpoint store: claim one due
// record, execute one bounded unit, persist the outcome, repeat. It holds no
// workflow state of its own between units.
type Runner struct {
	store     CheckpointStore
	registry  map[string]WorkflowFunc
	logger    *logger.Logger
	pollEvery time.Duration
}

// NewRunner creates a runner polling the store at the given interval.
func NewRunner(store CheckpointStore, log *logger.Logger, pollEvery time.Duration) *Runner {
	if pollEvery <= 0 {
		pollEvery = 2 * time.Second
	}
	return &Runner{
		store:     store,
		registry:  make(map[string]WorkflowFunc),
		logger:    log.WithField("module", "durable"),
		pollEvery: pollEvery,
	}
}

// Register binds a workflow name to its unit function. Unknown names found
// in the store fail their runs instead of being silently skipped.
func (r *Runner) Register(name string, fn WorkflowFunc) {
	r.registry[name] = fn
}

// Start creates the initial checkpoint for a new run and returns its run id.
func (r *Runner) Start(ctx context.Context, workflow string, args any) (string, error) {
	if _, ok := r.registry[workflow]; !ok {
		return "", fmt.Errorf("unknown workflow %q", workflow)
	}

	raw, err := MarshalArgs(args)
	if err != nil {
		return "", err
	}

	cp := &Checkpoint{
		RunID:     uuid.NewString(),
		Workflow:  workflow,
		Iteration: 0,
		Version:   CheckpointVersion,
		Args:      raw,
		Status:    StatusPending,
		WakeAt:    time.Now(),
	}

	if err := r.store.Create(ctx, cp); err != nil {
		return "", fmt.Errorf("create checkpoint: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"run_id":   cp.RunID,
		"workflow": workflow,
	}).Info("Run started")

	return cp.RunID, nil
}

// Run loops until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		// Drain all due work before sleeping
		for {
			executed, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.WithError(err).Error("Unit execution failed")
			}
			if !executed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce claims and executes at most one due unit of work. It reports
// whether a unit was executed.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	now := time.Now()

	cp, err := r.store.ClaimDue(ctx, now)
	if err != nil {
		return false, fmt.Errorf("claim checkpoint: %w", err)
	}
	if cp == nil {
		return false, nil
	}

	if cp.Version != CheckpointVersion {
		msg := fmt.Sprintf("checkpoint version %d, runner supports %d", cp.Version, CheckpointVersion)
		if failErr := r.store.Fail(ctx, cp.RunID, cp.Iteration, msg); failErr != nil {
			return true, failErr
		}
		return true, fmt.Errorf("run %s: %s", cp.RunID, msg)
	}

	fn, ok := r.registry[cp.Workflow]
	if !ok {
		msg := fmt.Sprintf("no workflow registered for %q", cp.Workflow)
		if failErr := r.store.Fail(ctx, cp.RunID, cp.Iteration, msg); failErr != nil {
			return true, failErr
		}
		return true, fmt.Errorf("run %s: %s", cp.RunID, msg)
	}

	log := r.logger.WithFields(map[string]interface{}{
		"run_id":    cp.RunID,
		"workflow":  cp.Workflow,
		"iteration": cp.Iteration,
	})
	log.Debug("Unit started")

	rt := &runtime{runID: cp.RunID, iteration: cp.Iteration, now: now, logger: r.logger}

	outcome, err := fn(ctx, rt, cp.Args)
	if err != nil {
		log.WithError(err).Error("Unit failed")
		if failErr := r.store.Fail(ctx, cp.RunID, cp.Iteration, err.Error()); failErr != nil {
			return true, failErr
		}
		return true, err
	}

	switch outcome.kind {
	case outcomeDone:
		if err := r.store.Complete(ctx, cp.RunID, cp.Iteration); err != nil {
			return true, fmt.Errorf("complete checkpoint: %w", err)
		}
		log.Info("Run completed")

	case outcomeContinue:
		raw, err := MarshalArgs(outcome.args)
		if err != nil {
			if failErr := r.store.Fail(ctx, cp.RunID, cp.Iteration, err.Error()); failErr != nil {
				return true, failErr
			}
			return true, err
		}

		next := &Checkpoint{
			RunID:     cp.RunID,
			Workflow:  cp.Workflow,
			Iteration: cp.Iteration + 1,
			Version:   CheckpointVersion,
			Args:      raw,
			Status:    StatusPending,
			WakeAt:    now.Add(outcome.wakeAfter),
		}
		if err := r.store.ContinueAsNew(ctx, next); err != nil {
			return true, fmt.Errorf("continue checkpoint: %w", err)
		}
		log.WithField("wake_after", outcome.wakeAfter.String()).Debug("Unit checkpointed")
	}

	return true, nil
}

// runtime implements Runtime for one unit of work.
type runtime struct {
	runID     string
	iteration int
	now       time.Time
	logger    *logger.Logger
}

func (rt *runtime) Now() time.Time { return rt.now }
func (rt *runtime) RunID() string  { return rt.runID }
func (rt *runtime) Iteration() int { return rt.iteration }

func (rt *runtime) Call(ctx context.Context, name string, policy RetryPolicy, fn func(context.Context) error) error {
	err := callWithRetry(ctx, policy, fn)
	if err != nil {
		rt.logger.WithError(err).WithFields(map[string]interface{}{
			"run_id": rt.runID,
			"call":   name,
		}).Warn("External call failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// DecodeArgs unmarshals checkpoint args into dest.
func DecodeArgs(raw json.RawMessage, dest any) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode workflow args: %w", err)
	}
	return nil
}
