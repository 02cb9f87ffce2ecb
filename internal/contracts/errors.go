package contracts

import (
	"errors"
	"fmt"
)

// ErrInputInvalid rejects malformed input (ticker, date range, edge id list)
// before any fetch is attempted; no side effects may have occurred.
var ErrInputInvalid = errors.New("invalid input")

// ErrNotFound is returned by repositories when a natural key has no row.
var ErrNotFound = errors.New("not found")

// RetryableError wraps transient fetch failures (rate limits, network).
// The durable substrate retries these with backoff up to the policy ceiling.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// TerminalError wraps permanent fetch failures (malformed upstream data,
// 4xx-class responses). The current sub-range is abandoned without partial
// persistence and the failure surfaces to the caller.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return fmt.Sprintf("terminal: %v", e.Err) }
func (e *TerminalError) Unwrap() error { return e.Err }

// Retryable wraps err as retryable.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Terminal wraps err as terminal.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// IsRetryable reports whether err is classified as retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// IsTerminal reports whether err is classified as terminal.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// SubRangeError carries enough context to resume a failed run from its last
// committed quarter: the ticker, the failing sub-range, and the originating
// signal.
type SubRangeError struct {
	Ticker string
	Period Period
	Signal string
	Err    error
}

func (e *SubRangeError) Error() string {
	return fmt.Sprintf("ticker %s sub-range [%s, %s) signal %s: %v",
		e.Ticker,
		e.Period.Start.Format("2006-01-02"),
		e.Period.End.Format("2006-01-02"),
		e.Signal,
		e.Err,
	)
}

func (e *SubRangeError) Unwrap() error { return e.Err }
