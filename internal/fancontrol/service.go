// Package fancontrol drives a fan from a PWM channel, holding a thermal zone
// near a target temperature.
package fancontrol

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Output is the PWM side of the loop. pwm.AsyncChannel satisfies it.
type Output interface {
	SetDutyCycleFraction(ctx context.Context, fraction float32) error
}

type Config struct {
	// TargetC is the thermal zone setpoint in degrees C.
	TargetC float64
	// MinDuty is the lowest non-zero duty fraction that keeps the fan turning.
	MinDuty float64
	// Interval controls how often duty is recomputed.
	Interval time.Duration
	// Kick runs the fan at full duty for this long before regulating.
	Kick time.Duration

	ThermalZone string
	Fs          afero.Fs
	Logger      *slog.Logger
}

type Snapshot struct {
	TempValid bool    `json:"temp_valid"`
	TempC     float64 `json:"temp_c"`
	Duty      float64 `json:"duty"`

	LastUpdateAt time.Time `json:"last_update_utc,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config
	log *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg Config) *Service {
	if cfg.TargetC == 0 {
		cfg.TargetC = 50.0
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	cfg.MinDuty = clamp(cfg.MinDuty, 0, 1)
	if cfg.ThermalZone == "" {
		cfg.ThermalZone = DefaultThermalZone
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}

func (s *Service) setDuty(ctx context.Context, out Output, duty float64) error {
	if err := out.SetDutyCycleFraction(ctx, float32(duty)); err != nil {
		err = fmt.Errorf("fancontrol: set duty %.3f: %w", duty, err)
		s.setState(func(sn *Snapshot) { sn.LastError = err.Error() })
		return err
	}
	s.setState(func(sn *Snapshot) { sn.Duty = duty })
	return nil
}

// Run regulates out until ctx is done, then stops the fan. A failed write
// to out ends the loop with the fan left at full duty if possible.
func (s *Service) Run(ctx context.Context, out Output) (err error) {
	defer func() {
		stop := context.WithoutCancel(ctx)
		if err != nil {
			_ = s.setDuty(stop, out, 1)
			return
		}
		err = s.setDuty(stop, out, 0)
	}()

	if err := s.setDuty(ctx, out, 1); err != nil {
		return err
	}
	if s.cfg.Kick > 0 {
		t := time.NewTimer(s.cfg.Kick)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
	if err := s.setDuty(ctx, out, s.cfg.MinDuty); err != nil {
		return err
	}
	return s.loop(ctx, out)
}

func (s *Service) loop(ctx context.Context, out Output) error {
	p := newPID(0.002, 0.002, 0.001, s.cfg.TargetC, 1)

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	var last float64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		tempC, err := ReadTempC(s.cfg.Fs, s.cfg.ThermalZone)
		if err != nil {
			s.log.Warn("fancontrol: temperature unavailable, running at full duty", "err", err)
			s.setState(func(sn *Snapshot) {
				sn.TempValid = false
				sn.LastError = err.Error()
			})
			if err := s.setDuty(ctx, out, 1); err != nil && ctx.Err() == nil {
				return err
			}
			continue
		}

		demand := p.demand(tempC, s.cfg.Interval)
		// Small demands are ignored until the fan has been driven once.
		var duty float64
		if demand > 0.05 || last != 0 {
			last = demand
			duty = demand
		} else {
			last = 0
			duty = 0.01
		}
		duty = clamp(duty, 0, 1)
		if duty > 0 {
			duty = s.cfg.MinDuty + duty*(1-s.cfg.MinDuty)
		}

		if err := s.setDuty(ctx, out, duty); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.setState(func(sn *Snapshot) {
			sn.TempValid = true
			sn.TempC = tempC
			sn.LastError = ""
		})
		s.log.Debug("fancontrol: update", "temp_c", tempC, "duty", duty)
	}
}
