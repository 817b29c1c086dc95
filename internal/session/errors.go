package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoContent means zero segments survived fetch and probe across both
// channels. The session fails; there is nothing to reconstruct.
var ErrNoContent = errors.New("no usable video or audio segments were found")

// Phase identifies a stage of the session pipeline.
type Phase int

const (
	PhaseFetching Phase = iota
	PhaseReconstructing
	PhaseCompiling
	PhaseCleaningUp
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseReconstructing:
		return "reconstructing"
	case PhaseCompiling:
		return "compiling"
	case PhaseCleaningUp:
		return "cleaning-up"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// PhaseError reports which pipeline phase failed and why.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("session failed during %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// IsCancelled reports whether the error chain stems from user cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
