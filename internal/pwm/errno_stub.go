//go:build !linux

package pwm

// The sysfs PWM interface only exists on Linux; errno classification
// never matches elsewhere.

func IsRejected(err error) bool    { return false }
func IsBusy(err error) bool        { return false }
func IsUnsupported(err error) bool { return false }
