// Package pwm controls Linux PWM channels through /sys/class/pwm.
//
// A Chip is a controller (pwmchipN). A Channel is one of its outputs
// (pwmchipN/pwmM); its attributes only exist while the channel is exported.
// Channel.RunWhileExported brackets work with export and unexport so the
// channel is released on every exit path:
//
//	ch, err := pwm.NewChannel(0, 1)
//	if err != nil {
//		return err
//	}
//	err = ch.RunWhileExported(func() error {
//		if err := ch.SetPeriodNS(20_000_000); err != nil {
//			return err
//		}
//		if err := ch.SetDutyCycleFraction(0.075); err != nil {
//			return err
//		}
//		return ch.Enable(true)
//	})
//
// Nothing is cached: every accessor reads or writes the attribute file.
// Range checks are left to the kernel driver, which rejects bad values
// with EINVAL (see IsRejected).
//
// AsyncChip and AsyncChannel offer the same operations taking a
// context.Context. Each call issues its file I/O on a separate goroutine and
// waits for it to finish or for ctx to be done, whichever comes first. When
// ctx ends first the call returns ctx.Err() and the I/O still runs to
// completion in the background. Nothing is retried and no deadline is added.
package pwm
