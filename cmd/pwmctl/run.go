package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"sysfs-pwm/internal/config"
	"sysfs-pwm/internal/gpiocapture"
	"sysfs-pwm/internal/pwm"
)

// applyAndHold exports and configures every channel, keeps them running
// until cfg.Hold elapses or ctx is done, then disables and releases them.
// If one channel fails, the others are released too.
func applyAndHold(ctx context.Context, cfg config.Config, opts []pwm.Option, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cc := range cfg.Channels {
		g.Go(func() error {
			ch, err := pwm.NewAsyncChannel(gctx, cc.Chip, cc.Channel, opts...)
			if err != nil {
				return err
			}
			return ch.RunWhileExported(gctx, func(ctx context.Context) error {
				s := cc.Settings()
				if err := ch.Apply(ctx, s); err != nil {
					return err
				}
				logger.Info("channel running", "channel", ch.String(),
					"period_ns", s.PeriodNS, "duty_cycle_ns", s.DutyCycleNS,
					"polarity", s.Polarity.String(), "enable", s.Enable)

				hold(ctx, cfg.Hold)

				// Stop the output even when shutdown canceled ctx.
				if err := ch.Enable(context.WithoutCancel(ctx), false); err != nil {
					return fmt.Errorf("pwmctl: disable %s: %w", ch, err)
				}
				logger.Info("channel stopped", "channel", ch.String())
				return nil
			})
		})
	}
	return g.Wait()
}

// hold blocks for d, or until ctx is done when d is 0.
func hold(ctx context.Context, d time.Duration) {
	if d <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func listChips(ctx context.Context, w io.Writer, opts []pwm.Option) error {
	chips, err := pwm.AsyncChips(ctx, opts...)
	if err != nil {
		return err
	}
	if len(chips) == 0 {
		fmt.Fprintln(w, "no pwm chips found")
		return nil
	}
	for _, c := range chips {
		n, err := c.Count(ctx)
		if err != nil {
			return fmt.Errorf("pwmctl: %s: %w", c, err)
		}
		var exported []uint32
		for i := uint32(0); i < n; i++ {
			ok, err := c.Exported(ctx, i)
			if err != nil {
				return err
			}
			if ok {
				exported = append(exported, i)
			}
		}
		fmt.Fprintf(w, "%s\tnpwm=%d\texported=%v\n", c, n, exported)
	}
	return nil
}

// runCapture measures with software capture when a GPIO line is configured,
// otherwise it reads the capture attribute of the first configured channel.
func runCapture(ctx context.Context, w io.Writer, cfg config.Config, opts []pwm.Option) error {
	var (
		c   pwm.Capture
		err error
	)
	if cfg.Capture.Chip != "" {
		c, err = gpiocapture.Measure(ctx, cfg.Capture.Chip, cfg.Capture.Offset, cfg.Capture.Window)
	} else {
		if len(cfg.Channels) == 0 {
			return fmt.Errorf("pwmctl: capture needs capture.chip or a configured channel")
		}
		cc := cfg.Channels[0]
		var ch pwm.AsyncChannel
		ch, err = pwm.NewAsyncChannel(ctx, cc.Chip, cc.Channel, opts...)
		if err != nil {
			return err
		}
		c, err = pwm.WithExportedContext(ctx, ch, func(ctx context.Context) (pwm.Capture, error) {
			return ch.Capture(ctx)
		})
		if pwm.IsUnsupported(err) {
			return fmt.Errorf("pwmctl: %s has no capture support, set capture.chip for software capture: %w", ch, err)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "period_ns=%d duty_cycle_ns=%d%s\n", c.PeriodNS, c.DutyCycleNS, dutyPercent(c))
	return nil
}

func dutyPercent(c pwm.Capture) string {
	if c.PeriodNS == 0 {
		return ""
	}
	return fmt.Sprintf(" duty=%.1f%%", 100*float64(c.DutyCycleNS)/float64(c.PeriodNS))
}
