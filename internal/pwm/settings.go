package pwm

import "fmt"

// Settings is a complete channel configuration.
type Settings struct {
	PeriodNS    uint64
	DutyCycleNS uint64
	Polarity    Polarity
	Enable      bool
}

// Apply writes s to an exported channel.
//
// The channel is disabled first so the polarity can change. The kernel
// checks duty_cycle <= period on every write, so when the new period is
// shorter than the current duty cycle the duty cycle is written first.
func (c Channel) Apply(s Settings) error {
	if err := c.Enable(false); err != nil {
		return fmt.Errorf("pwm: %s: disable: %w", c, err)
	}
	if err := c.SetPolarity(s.Polarity); err != nil {
		return fmt.Errorf("pwm: %s: set polarity: %w", c, err)
	}

	cur, err := c.DutyCycleNS()
	if err != nil {
		return fmt.Errorf("pwm: %s: read duty cycle: %w", c, err)
	}
	if s.PeriodNS < cur {
		if err := c.SetDutyCycleNS(s.DutyCycleNS); err != nil {
			return fmt.Errorf("pwm: %s: set duty cycle: %w", c, err)
		}
		if err := c.SetPeriodNS(s.PeriodNS); err != nil {
			return fmt.Errorf("pwm: %s: set period: %w", c, err)
		}
	} else {
		if err := c.SetPeriodNS(s.PeriodNS); err != nil {
			return fmt.Errorf("pwm: %s: set period: %w", c, err)
		}
		if err := c.SetDutyCycleNS(s.DutyCycleNS); err != nil {
			return fmt.Errorf("pwm: %s: set duty cycle: %w", c, err)
		}
	}

	if s.Enable {
		if err := c.Enable(true); err != nil {
			return fmt.Errorf("pwm: %s: enable: %w", c, err)
		}
	}
	c.chip.sys.log.Debug("pwm channel configured", "channel", c.String(),
		"period_ns", s.PeriodNS, "duty_cycle_ns", s.DutyCycleNS, "polarity", s.Polarity.String(), "enable", s.Enable)
	return nil
}
