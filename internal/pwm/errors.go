package pwm

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrZeroPeriod is returned by DutyCycleFraction when the channel period is 0.
	ErrZeroPeriod = errors.New("pwm: period is zero")
	// ErrFractionRange is returned when a duty cycle fraction is negative, NaN or
	// infinite.
	ErrFractionRange = errors.New("pwm: duty cycle fraction out of range")
)

// IOError reports a failed filesystem operation on a sysfs entry.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pwm: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// UnexpectedError reports attribute contents that did not parse.
// Raw holds the file contents as read.
type UnexpectedError struct {
	Path string
	Raw  string
	Err  error
}

func (e *UnexpectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pwm: unexpected contents of %s: %q: %v", e.Path, e.Raw, e.Err)
	}
	return fmt.Sprintf("pwm: unexpected contents of %s: %q", e.Path, e.Raw)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

// CompoundError is returned by scoped acquisition when both the work and the
// release of the channel failed.
type CompoundError struct {
	Work    error
	Release error
}

func (e *CompoundError) Error() string {
	return fmt.Sprintf("pwm: unexport failed: %v; while handling: %v", e.Release, e.Work)
}

func (e *CompoundError) Unwrap() []error { return []error{e.Work, e.Release} }

// IsNotFound reports whether err was caused by a missing sysfs entry,
// e.g. a chip that the kernel does not expose.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func releaseResult(work, release error) error {
	switch {
	case work != nil && release != nil:
		return &CompoundError{Work: work, Release: release}
	case work != nil:
		return work
	default:
		return release
	}
}
