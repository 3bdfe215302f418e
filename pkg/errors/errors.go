package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfigLoad        = errors.New("loading persisted settings failed")
	ErrIteration         = errors.New("iteration failed")
	ErrIndexEngine       = errors.New("index engine failure")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRebuildInProgress = errors.New("rebuild already in progress")
)

// Code maps err to a stable identifier carried across the control RPC
// boundary, so clients can classify failures without string matching.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRebuildInProgress):
		return "rebuild_in_progress"
	case errors.Is(err, ErrConfigLoad):
		return "config_load"
	case errors.Is(err, ErrIteration):
		return "iteration"
	case errors.Is(err, ErrIndexEngine):
		return "index_engine"
	default:
		return "internal"
	}
}

// FromCode reverses Code on the client side of the control RPC. The
// returned error wraps the matching sentinel so errors.Is keeps working
// across the process boundary.
func FromCode(code, message string) error {
	sentinel, ok := map[string]error{
		"invalid_input":       ErrInvalidInput,
		"rebuild_in_progress": ErrRebuildInProgress,
		"config_load":         ErrConfigLoad,
		"iteration":           ErrIteration,
		"index_engine":        ErrIndexEngine,
	}[code]
	if !ok {
		return errors.New(message)
	}
	if message == "" {
		return sentinel
	}
	return fmt.Errorf("%s: %w", message, sentinel)
}
