package main

import (
	"context"
	"log/slog"

	"github.com/spf13/afero"

	"sysfs-pwm/internal/config"
	"sysfs-pwm/internal/fancontrol"
	"sysfs-pwm/internal/pwm"
)

// runFan exports the fan channel, starts it at the configured period and
// regulates it until ctx is done. A clean stop disables the output; if the
// loop failed the fan is left at full duty when the channel is released.
func runFan(ctx context.Context, cfg config.FanConfig, fs afero.Fs, opts []pwm.Option, logger *slog.Logger) error {
	ch, err := pwm.NewAsyncChannel(ctx, cfg.Chip, cfg.Channel, opts...)
	if err != nil {
		return err
	}
	svc := fancontrol.New(fancontrol.Config{
		TargetC:     cfg.TargetC,
		MinDuty:     cfg.MinDuty,
		Interval:    cfg.Interval,
		Kick:        cfg.Kick,
		ThermalZone: cfg.ThermalZone,
		Fs:          fs,
		Logger:      logger,
	})
	return ch.RunWhileExported(ctx, func(ctx context.Context) error {
		err := ch.Apply(ctx, pwm.Settings{
			PeriodNS: cfg.PeriodNS,
			Polarity: cfg.Polarity,
			Enable:   true,
		})
		if err != nil {
			return err
		}
		logger.Info("fan running", "channel", ch.String(), "target_c", cfg.TargetC, "period_ns", cfg.PeriodNS)

		if err := svc.Run(ctx, ch); err != nil {
			logger.Error("fan loop failed, leaving fan at full duty", "channel", ch.String(), "err", err)
			return err
		}
		if err := ch.Enable(context.WithoutCancel(ctx), false); err != nil {
			return err
		}
		snap := svc.Snapshot()
		logger.Info("fan stopped", "channel", ch.String(), "temp_c", snap.TempC)
		return nil
	})
}
