// FILE: bterrors.go
// Package bterrors – shared error kinds for the backtesting engine.
//
// Two kinds are recoverable at a task boundary (InsufficientHistory,
// MissingPotentialCoinTimeIndex); the driver catches these and leaves the
// corresponding Result Cube cell at NaN. InsufficientBalance is caught
// inside the simulator itself. ErrConfiguration is fatal and is raised
// before a task starts.
package bterrors

import "errors"

// ErrInsufficientHistory is returned when a history query has no rows
// left after filtering, or a point lookup misses its timestamp.
var ErrInsufficientHistory = errors.New("insufficient history")

// ErrMissingPotentialCoinTimeIndex is returned when a window is asked of
// the potential-coin resolver that was never registered in its multi-index.
var ErrMissingPotentialCoinTimeIndex = errors.New("missing potential-coin time index")

// ErrInsufficientBalance is returned when a reservation or release cannot
// be satisfied by the portfolio's current holdings.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrConfiguration marks a fatal configuration mistake (e.g. neither
// cutoff form present) caught at task start rather than mid-run.
var ErrConfiguration = errors.New("configuration error")

// Recoverable reports whether err (or a wrapped cause) is one of the
// per-task recoverable kinds that the driver may swallow, leaving a NaN
// cell behind instead of aborting the run.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) || errors.Is(err, ErrMissingPotentialCoinTimeIndex)
}
