package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CheckpointVersion is bumped whenever the serialized args format of any
// workflow changes incompatibly. The runner refuses checkpoints from a
// different version instead of misinterpreting them.
const CheckpointVersion = 1

// Status is the lifecycle state of a checkpoint record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Checkpoint is the entire resumable state of one run: a small, versioned
// record. The runner loop reads it, executes one bounded unit of work,
// writes the successor record, and exits the unit. Resumption is a fresh
// invocation, never a suspended stack frame.
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	Workflow  string          `json:"workflow"`
	Iteration int             `json:"iteration"`
	Version   int             `json:"version"`
	Args      json.RawMessage `json:"args"`
	Status    Status          `json:"status"`
	WakeAt    time.Time       `json:"wake_at"`
	LastError string          `json:"last_error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CheckpointStore persists checkpoint records. ClaimDue must atomically move
// exactly one due pending record to running so concurrent runners never
// execute the same unit twice.
type CheckpointStore interface {
	Create(ctx context.Context, cp *Checkpoint) error
	ClaimDue(ctx context.Context, now time.Time) (*Checkpoint, error)
	ContinueAsNew(ctx context.Context, next *Checkpoint) error
	Complete(ctx context.Context, runID string, iteration int) error
	Fail(ctx context.Context, runID string, iteration int, message string) error
	Get(ctx context.Context, runID string) (*Checkpoint, error)
}

// outcomeKind tags what the workflow decided at the end of its unit.
type outcomeKind int

const (
	outcomeDone outcomeKind = iota
	outcomeContinue
)

// Outcome is the result of one bounded unit of work.
type Outcome struct {
	kind      outcomeKind
	args      any
	wakeAfter time.Duration
}

// Done finishes the run.
func Done() Outcome {
	return Outcome{kind: outcomeDone}
}

// Continue replaces the current unit with a fresh one carrying args,
// discarding all in-memory state.
func Continue(args any) Outcome {
	return Outcome{kind: outcomeContinue, args: args}
}

// ContinueAfter is Continue plus a suspension: the successor unit becomes
// due only after d has elapsed. This is how pollers sleep without holding
// resources.
func ContinueAfter(args any, d time.Duration) Outcome {
	return Outcome{kind: outcomeContinue, args: args, wakeAfter: d}
}

// WorkflowFunc executes one bounded unit of work. It must not read the wall
// clock or sleep directly; rt is the only door to time and fallible I/O.
type WorkflowFunc func(ctx context.Context, rt Runtime, args json.RawMessage) (Outcome, error)

// Runtime is the facility surface handed to a workflow for one unit of work.
type Runtime interface {
	// Now returns the unit's start time, fixed for the whole unit.
	Now() time.Time

	// RunID identifies the logical run across checkpoints.
	RunID() string

	// Iteration is the zero-based checkpoint counter for this run.
	Iteration() int

	// Call executes a fallible external operation under the retry policy.
	// Terminal-classified errors short-circuit the backoff loop.
	Call(ctx context.Context, name string, policy RetryPolicy, fn func(context.Context) error) error
}

// MarshalArgs serializes workflow args for a checkpoint record.
func MarshalArgs(args any) (json.RawMessage, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow args: %w", err)
	}
	return data, nil
}
