package pwm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Channel is one output line of a Chip.
//
// A Channel value carries no kernel resource and may be copied freely. The
// channel's attributes are only present while it is exported; prefer
// RunWhileExported over calling Export and Unexport by hand so the line is
// released on every exit path.
//
// Obtain channels from NewChannel or Chip.Channel; the zero value is not
// usable.
type Channel struct {
	chip  Chip
	index uint32
}

// NewChannel returns a handle for channel on controller chip. It fails the
// same way NewChip does. The channel is not exported.
func NewChannel(chip, channel uint32, opts ...Option) (Channel, error) {
	c, err := NewChip(chip, opts...)
	if err != nil {
		return Channel{}, err
	}
	return c.Channel(channel), nil
}

func (c Channel) Chip() Chip    { return c.chip }
func (c Channel) Index() uint32 { return c.index }

func (c Channel) String() string {
	return fmt.Sprintf("pwmchip%d/pwm%d", c.chip.index, c.index)
}

func (c Channel) Export() error   { return c.chip.Export(c.index) }
func (c Channel) Unexport() error { return c.chip.Unexport(c.index) }
func (c Channel) Exported() bool  { return c.chip.Exported(c.index) }

// RunWhileExported exports the channel, runs body and unexports the channel
// again whatever body returned. If both body and the unexport fail, the
// result is a *CompoundError holding both.
func (c Channel) RunWhileExported(body func() error) error {
	_, err := WithExported(c, func() (struct{}, error) {
		return struct{}{}, body()
	})
	return err
}

// WithExported is RunWhileExported for bodies that produce a value.
// If body panics, the channel is unexported before the panic continues.
func WithExported[T any](c Channel, body func() (T, error)) (v T, err error) {
	if err := c.Export(); err != nil {
		return v, err
	}
	released := false
	defer func() {
		if released {
			return
		}
		if uerr := c.Unexport(); uerr != nil {
			c.chip.sys.log.Warn("pwm unexport after panic failed", "channel", c.String(), "err", uerr)
		}
	}()

	v, err = body()
	released = true
	uerr := c.Unexport()
	if uerr != nil {
		c.chip.sys.log.Warn("pwm unexport failed", "channel", c.String(), "err", uerr)
	}
	return v, releaseResult(err, uerr)
}

func (c Channel) attr(name string) string {
	return c.chip.sys.channelAttr(c.chip.index, c.index, name)
}

// Enable starts (true) or stops (false) the output signal.
func (c Channel) Enable(enable bool) error {
	v := "0"
	if enable {
		v = "1"
	}
	return c.chip.sys.writeAttr(c.attr("enable"), v, false)
}

// IsEnabled reads the enable attribute. The kernel only ever reports 0 or 1;
// any other number panics.
func (c Channel) IsEnabled() (bool, error) {
	n, err := c.chip.sys.readUint(c.attr("enable"), 32)
	if err != nil {
		return false, err
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		panic(fmt.Sprintf("pwm: %s enable=%d, kernel reports only 0 or 1", c, n))
	}
}

// PeriodNS returns the signal period in nanoseconds.
func (c Channel) PeriodNS() (uint64, error) {
	return c.chip.sys.readUint(c.attr("period"), 64)
}

// SetPeriodNS sets the signal period. Range checks are left to the driver.
func (c Channel) SetPeriodNS(v uint64) error {
	return c.chip.sys.writeUint(c.attr("period"), v, false)
}

// DutyCycleNS returns the active time in nanoseconds.
func (c Channel) DutyCycleNS() (uint64, error) {
	return c.chip.sys.readUint(c.attr("duty_cycle"), 64)
}

// SetDutyCycleNS sets the active time. The driver rejects values larger than
// the period; IsRejected reports true for that error.
func (c Channel) SetDutyCycleNS(v uint64) error {
	return c.chip.sys.writeUint(c.attr("duty_cycle"), v, false)
}

// DutyCycleFraction returns duty_cycle / period. It returns ErrZeroPeriod
// when no period is configured.
func (c Channel) DutyCycleFraction() (float32, error) {
	duty, err := c.DutyCycleNS()
	if err != nil {
		return 0, err
	}
	period, err := c.PeriodNS()
	if err != nil {
		return 0, err
	}
	return dutyFraction(duty, period)
}

// SetDutyCycleFraction sets the duty cycle to fraction of the current period.
func (c Channel) SetDutyCycleFraction(fraction float32) error {
	if err := checkFraction(fraction); err != nil {
		return err
	}
	period, err := c.PeriodNS()
	if err != nil {
		return err
	}
	return c.SetDutyCycleNS(fractionToNS(fraction, period))
}

func (c Channel) Polarity() (Polarity, error) {
	path := c.attr("polarity")
	raw, err := c.chip.sys.readAttr(path)
	if err != nil {
		return Normal, err
	}
	p, err := ParsePolarity(strings.TrimSpace(raw))
	if err != nil {
		return Normal, &UnexpectedError{Path: path, Raw: raw}
	}
	return p, nil
}

// SetPolarity writes the polarity. Most drivers only accept it while the
// channel is disabled.
func (c Channel) SetPolarity(p Polarity) error {
	b, err := p.MarshalText()
	if err != nil {
		return err
	}
	return c.chip.sys.writeAttr(c.attr("polarity"), string(b), false)
}

// Capture is a measurement of an externally driven signal.
type Capture struct {
	PeriodNS    uint64
	DutyCycleNS uint64
}

// Capture reads the capture attribute. Drivers without capture support fail
// with an error for which IsUnsupported reports true.
func (c Channel) Capture() (Capture, error) {
	path := c.attr("capture")
	raw, err := c.chip.sys.readAttr(path)
	if err != nil {
		return Capture{}, err
	}
	return parseCapture(path, raw)
}

func parseCapture(path, raw string) (Capture, error) {
	var vals []uint64
	for _, tok := range strings.Fields(raw) {
		n, err := strconv.ParseUint(tok, 10, 64)
		if err != nil {
			continue
		}
		vals = append(vals, n)
	}
	if len(vals) != 2 {
		return Capture{}, &UnexpectedError{Path: path, Raw: raw, Err: fmt.Errorf("want 2 values, got %d", len(vals))}
	}
	return Capture{PeriodNS: vals[0], DutyCycleNS: vals[1]}, nil
}

func dutyFraction(duty, period uint64) (float32, error) {
	if period == 0 {
		return 0, ErrZeroPeriod
	}
	return float32(float64(duty) / float64(period)), nil
}

func checkFraction(f float32) error {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) || f < 0 {
		return fmt.Errorf("%w: %v", ErrFractionRange, f)
	}
	return nil
}

func fractionToNS(f float32, period uint64) uint64 {
	return uint64(math.Round(float64(f) * float64(period)))
}
