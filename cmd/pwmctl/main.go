package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"sysfs-pwm/internal/config"
)

func main() {
	var (
		configPath string
		list       bool
		capture    bool
		fan        bool
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults apply when empty)")
	flag.BoolVar(&list, "list", false, "List PWM chips and exit")
	flag.BoolVar(&capture, "capture", false, "Measure the configured capture input and exit")
	flag.BoolVar(&fan, "fan", false, "Run the thermal fan loop from the fan section until interrupted")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			slog.Error("config load failed", "path", configPath, "err", err)
			os.Exit(1)
		}
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := pwmOptions(cfg, logger)

	var err error
	switch {
	case list:
		err = listChips(ctx, os.Stdout, opts)
	case capture:
		err = runCapture(ctx, os.Stdout, cfg, opts)
	case fan:
		if !cfg.Fan.Enable {
			logger.Error("fan section is not enabled", "config", configPath)
			os.Exit(2)
		}
		err = runFan(ctx, cfg.Fan, afero.NewOsFs(), opts, logger)
	default:
		if len(cfg.Channels) == 0 {
			logger.Error("no channels configured", "config", configPath)
			os.Exit(2)
		}
		logger.Info("pwmctl starting", "channels", len(cfg.Channels), "hold", cfg.Hold)
		err = applyAndHold(ctx, cfg, opts, logger)
		logger.Info("pwmctl stopping")
	}
	if err != nil {
		logger.Error("pwmctl failed", "err", err)
		os.Exit(1)
	}
}
