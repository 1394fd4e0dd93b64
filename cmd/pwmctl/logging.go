package main

import (
	"io"
	"log/slog"

	"sysfs-pwm/internal/config"
	"sysfs-pwm/internal/pwm"
)

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func pwmOptions(cfg config.Config, logger *slog.Logger) []pwm.Option {
	return append(cfg.Options(), pwm.WithLogger(logger))
}
