// Package gpiocapture measures a PWM signal in software by timestamping
// edges on a GPIO input line.
//
// It fills the gap left by PWM drivers that do not implement the sysfs
// capture attribute. Accuracy is bounded by the kernel's edge event
// timestamps and by the line's event buffer, so it suits signals in the
// Hz to low kHz range.
package gpiocapture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"sysfs-pwm/internal/pwm"
)

// ErrNoSignal is returned when the window held no complete cycle.
var ErrNoSignal = errors.New("gpiocapture: no complete cycle observed")

// Edge is one level change of the watched line.
type Edge struct {
	Rising bool
	// At is the kernel event timestamp. Only differences are meaningful.
	At time.Duration
}

// watchLine requests the line for both-edge events and calls handler for
// each one until the returned Closer is closed.
var watchLine = watchGPIOLine

// Measure watches offset on chip (e.g. "gpiochip0") for window and estimates
// the signal's period and duty cycle.
func Measure(ctx context.Context, chip string, offset int, window time.Duration) (pwm.Capture, error) {
	if window <= 0 {
		return pwm.Capture{}, fmt.Errorf("gpiocapture: invalid window %s", window)
	}

	var mu sync.Mutex
	var edges []Edge
	l, err := watchLine(chip, offset, func(e Edge) {
		mu.Lock()
		edges = append(edges, e)
		mu.Unlock()
	})
	if err != nil {
		return pwm.Capture{}, fmt.Errorf("gpiocapture: watch %s:%d: %w", chip, offset, err)
	}

	t := time.NewTimer(window)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		_ = l.Close()
		return pwm.Capture{}, ctx.Err()
	}
	if err := l.Close(); err != nil {
		return pwm.Capture{}, fmt.Errorf("gpiocapture: release %s:%d: %w", chip, offset, err)
	}

	mu.Lock()
	got := append([]Edge(nil), edges...)
	mu.Unlock()
	return Estimate(got)
}

// Estimate averages complete cycles found in edges. A cycle runs from one
// rising edge to the next; its active time ends at the first falling edge in
// between. Cycles with a missed falling edge are skipped.
func Estimate(edges []Edge) (pwm.Capture, error) {
	sorted := append([]Edge(nil), edges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })

	var (
		periodSum, dutySum time.Duration
		cycles             int
		start              = -1
		fall               time.Duration
		haveFall           bool
	)
	for i, e := range sorted {
		if !e.Rising {
			if start >= 0 && !haveFall {
				fall = e.At
				haveFall = true
			}
			continue
		}
		if start >= 0 && haveFall {
			periodSum += e.At - sorted[start].At
			dutySum += fall - sorted[start].At
			cycles++
		}
		start = i
		haveFall = false
	}
	if cycles == 0 {
		return pwm.Capture{}, ErrNoSignal
	}
	return pwm.Capture{
		PeriodNS:    uint64(periodSum.Nanoseconds() / int64(cycles)),
		DutyCycleNS: uint64(dutySum.Nanoseconds() / int64(cycles)),
	}, nil
}
