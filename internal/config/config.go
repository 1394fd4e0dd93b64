package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sysfs-pwm/internal/fancontrol"
	"sysfs-pwm/internal/pwm"
)

type Config struct {
	Sysfs    SysfsConfig     `yaml:"sysfs"`
	Log      LogConfig       `yaml:"log"`
	Hold     time.Duration   `yaml:"hold"`
	Channels []ChannelConfig `yaml:"channels"`
	Capture  CaptureConfig   `yaml:"capture"`
	Fan      FanConfig       `yaml:"fan"`
}

type SysfsConfig struct {
	Base       string         `yaml:"base"`
	ExportWait *time.Duration `yaml:"export_wait"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ChannelConfig struct {
	Chip    uint32 `yaml:"chip"`
	Channel uint32 `yaml:"channel"`

	PeriodNS uint64 `yaml:"period_ns"`
	// Exactly one of DutyCycleNS and DutyCycleFraction may be set; neither
	// means a duty cycle of 0.
	DutyCycleNS       *uint64  `yaml:"duty_cycle_ns"`
	DutyCycleFraction *float64 `yaml:"duty_cycle_fraction"`

	Polarity pwm.Polarity `yaml:"polarity"`
	Enable   bool         `yaml:"enable"`
}

// CaptureConfig selects the GPIO line used for software capture.
// An empty Chip means the kernel capture attribute is read instead.
type CaptureConfig struct {
	Chip   string        `yaml:"chip"`
	Offset int           `yaml:"offset"`
	Window time.Duration `yaml:"window"`
}

// FanConfig drives one PWM channel from a thermal zone.
type FanConfig struct {
	Enable      bool          `yaml:"enable"`
	Chip        uint32        `yaml:"chip"`
	Channel     uint32        `yaml:"channel"`
	PeriodNS    uint64        `yaml:"period_ns"`
	Polarity    pwm.Polarity  `yaml:"polarity"`
	ThermalZone string        `yaml:"thermal_zone"`
	TargetC     float64       `yaml:"target_c"`
	MinDuty     float64       `yaml:"min_duty"`
	Interval    time.Duration `yaml:"interval"`
	Kick        time.Duration `yaml:"kick"`
}

// Settings resolves the channel's duty cycle against its period.
func (c ChannelConfig) Settings() pwm.Settings {
	s := pwm.Settings{PeriodNS: c.PeriodNS, Polarity: c.Polarity, Enable: c.Enable}
	switch {
	case c.DutyCycleNS != nil:
		s.DutyCycleNS = *c.DutyCycleNS
	case c.DutyCycleFraction != nil:
		s.DutyCycleNS = uint64(math.Round(*c.DutyCycleFraction * float64(c.PeriodNS)))
	}
	return s
}

// Options returns the pwm options matching the sysfs section.
func (c Config) Options() []pwm.Option {
	opts := []pwm.Option{pwm.WithBase(c.Sysfs.Base)}
	if c.Sysfs.ExportWait != nil {
		opts = append(opts, pwm.WithExportWait(*c.Sysfs.ExportWait))
	}
	return opts
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return finalize(cfg)
}

// Default is the configuration of an empty file: no channels, default
// sysfs base and text logging at info level.
func Default() Config {
	cfg, _ := finalize(Config{})
	return cfg
}

func finalize(cfg Config) (Config, error) {
	if cfg.Sysfs.Base == "" {
		cfg.Sysfs.Base = pwm.DefaultBase
	}
	if cfg.Sysfs.ExportWait != nil && *cfg.Sysfs.ExportWait < 0 {
		return Config{}, fmt.Errorf("sysfs.export_wait must be >= 0")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return Config{}, fmt.Errorf("log.format must be 'text' or 'json'")
	}

	if cfg.Hold < 0 {
		return Config{}, fmt.Errorf("hold must be >= 0")
	}

	seen := make(map[[2]uint32]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		key := [2]uint32{ch.Chip, ch.Channel}
		if seen[key] {
			return Config{}, fmt.Errorf("channels[%d] duplicates pwmchip%d/pwm%d", i, ch.Chip, ch.Channel)
		}
		seen[key] = true

		if ch.PeriodNS == 0 {
			return Config{}, fmt.Errorf("channels[%d].period_ns is required", i)
		}
		if ch.DutyCycleNS != nil && ch.DutyCycleFraction != nil {
			return Config{}, fmt.Errorf("channels[%d]: duty_cycle_ns and duty_cycle_fraction cannot both be set", i)
		}
		if f := ch.DutyCycleFraction; f != nil && (*f < 0 || *f > 1) {
			return Config{}, fmt.Errorf("channels[%d].duty_cycle_fraction must be within [0, 1]", i)
		}
	}

	if cfg.Capture.Window <= 0 {
		cfg.Capture.Window = 1 * time.Second
	}
	if cfg.Capture.Chip != "" && cfg.Capture.Offset < 0 {
		return Config{}, fmt.Errorf("capture.offset must be >= 0")
	}

	if cfg.Fan.Enable {
		if cfg.Fan.PeriodNS == 0 {
			cfg.Fan.PeriodNS = 40000 // 25 kHz, the usual 4-pin fan frequency.
		}
		if cfg.Fan.ThermalZone == "" {
			cfg.Fan.ThermalZone = fancontrol.DefaultThermalZone
		}
		if cfg.Fan.TargetC == 0 {
			cfg.Fan.TargetC = 50
		}
		if cfg.Fan.Interval <= 0 {
			cfg.Fan.Interval = 5 * time.Second
		}
		if cfg.Fan.MinDuty < 0 || cfg.Fan.MinDuty > 1 {
			return Config{}, fmt.Errorf("fan.min_duty must be within [0, 1]")
		}
		if cfg.Fan.Kick < 0 {
			return Config{}, fmt.Errorf("fan.kick must be >= 0")
		}
	}

	return cfg, nil
}
