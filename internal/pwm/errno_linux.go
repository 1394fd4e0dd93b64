//go:build linux

package pwm

import (
	"errors"

	"golang.org/x/sys/unix"
)

// enotsupp is the kernel-internal ENOTSUPP that leaks out of some PWM
// drivers' capture callbacks. It has no libc name.
const enotsupp = unix.Errno(524)

// IsRejected reports whether the kernel driver refused a written value,
// e.g. a duty cycle larger than the period.
func IsRejected(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ERANGE)
}

// IsBusy reports whether the channel is held by another kernel consumer.
func IsBusy(err error) bool {
	return errors.Is(err, unix.EBUSY)
}

// IsUnsupported reports whether the driver does not implement the operation,
// which is the usual outcome of reading capture on an output-only chip.
func IsUnsupported(err error) bool {
	return errors.Is(err, enotsupp) ||
		errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, unix.ENOSYS) ||
		errors.Is(err, unix.ENODEV)
}
