package pwm

import "fmt"

// Polarity selects whether the active part of the period drives the line
// high (Normal) or low (Inverse).
type Polarity int

const (
	Normal Polarity = iota
	Inverse
)

func (p Polarity) String() string {
	switch p {
	case Normal:
		return "normal"
	case Inverse:
		return "inversed"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// ParsePolarity accepts the literal sysfs values "normal" and "inversed".
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "normal":
		return Normal, nil
	case "inversed":
		return Inverse, nil
	default:
		return Normal, fmt.Errorf("pwm: unknown polarity %q", s)
	}
}

func (p Polarity) MarshalText() ([]byte, error) {
	if p != Normal && p != Inverse {
		return nil, fmt.Errorf("pwm: invalid polarity %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Polarity) UnmarshalText(b []byte) error {
	v, err := ParsePolarity(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
