package domain

import (
	"errors"
	"fmt"
)

// ErrNoStages rejects a run with an empty stage list before anything starts.
var ErrNoStages = errors.New("no enabled stages configured")

// SetupError is fatal: the repository could not be prepared, so the run
// aborts before any stage executes. Everything else is captured inline in
// the build record.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup %s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// IsSetup reports whether err is a fatal setup failure.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}
