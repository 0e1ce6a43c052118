package flavor

import (
	"errors"
	"fmt"
)

var (
	// ErrOperation matches every error returned by a flavor operation.
	ErrOperation = errors.New("flavor operation failed")

	// ErrTransport marks failures of the device shell channel (adb).
	ErrTransport = errors.New("device transport failure")
	// ErrHostFS marks local filesystem failures.
	ErrHostFS = errors.New("host filesystem failure")
	// ErrCommand marks a program that ran but exited non-zero.
	ErrCommand = errors.New("command failed")

	// ErrStuckPath is returned when a directory survives removal.
	ErrStuckPath = errors.New("path still exists after removal")
)

// OpError records a failed flavor operation.
type OpError struct {
	Flavor Kind
	Op     string
	Path   string
	Kind   error // ErrTransport, ErrHostFS or ErrCommand
	Err    error
}

func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Flavor, e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() error { return e.Err }

// Is lets callers match either the uniform ErrOperation or the specific kind.
func (e *OpError) Is(target error) bool {
	return target == ErrOperation || (e.Kind != nil && target == e.Kind)
}

func hostErr(op, path string, err error) error {
	return &OpError{Flavor: KindHost, Op: op, Path: path, Kind: ErrHostFS, Err: err}
}

func deviceErr(op, path string, err error) error {
	return &OpError{Flavor: KindDevice, Op: op, Path: path, Kind: ErrTransport, Err: err}
}
