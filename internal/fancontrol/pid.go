package fancontrol

import "time"

// pid turns the excess of a reading over its setpoint into a fan demand in
// [0, ceiling]. The integral is frozen while the output is saturated in the
// direction the excess pushes, so a long hot spell does not keep the fan
// pinned after the temperature recovers.
//
// Not safe for concurrent use.
type pid struct {
	kp, ki, kd float64
	setpoint   float64
	ceiling    float64

	sum     float64
	prev    float64
	hasPrev bool
}

func newPID(kp, ki, kd, setpoint, ceiling float64) *pid {
	return &pid{kp: kp, ki: ki, kd: kd, setpoint: setpoint, ceiling: ceiling}
}

// demand advances the loop by dt. A non-positive dt leaves the state alone
// and returns 0.
func (p *pid) demand(reading float64, dt time.Duration) float64 {
	if dt <= 0 {
		return 0
	}
	sec := dt.Seconds()
	excess := reading - p.setpoint

	var slope float64
	if p.hasPrev {
		slope = (excess - p.prev) / sec
	}
	p.prev, p.hasPrev = excess, true

	sum := p.sum + excess*sec
	out := p.kp*excess + p.ki*sum + p.kd*slope
	saturated := (out > p.ceiling && excess > 0) || (out < 0 && excess < 0)
	if !saturated {
		p.sum = sum
	}
	return clamp(out, 0, p.ceiling)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
