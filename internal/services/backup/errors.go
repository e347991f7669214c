package backup

import (
	"errors"
	"fmt"
)

// Error kinds reported by a run. Match them with errors.Is.
var (
	ErrWorkspace   = errors.New("workspace error")
	ErrDump        = errors.New("dump error")
	ErrCopy        = errors.New("copy error")
	ErrArchive     = errors.New("archive error")
	ErrDestination = errors.New("destination error")
	ErrLocked      = errors.New("source path is locked by another job")
)

// Registration errors.
var (
	ErrJobRunning     = errors.New("backup job is running")
	ErrInvalidSource  = errors.New("invalid source path")
	ErrInvalidFile    = errors.New("invalid file path")
	ErrInvalidDB      = errors.New("invalid database source")
	ErrInvalidJobName = errors.New("invalid job name")
)

// PhaseError records the state a run failed in, the error kind and the cause.
type PhaseError struct {
	Phase State
	Kind  error
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Phase, e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// FailedPhase returns the phase of the first PhaseError in err's chain.
func FailedPhase(err error) (State, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return Idle, false
}
