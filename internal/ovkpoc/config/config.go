// Copyright (c) 2025 Justin Cranford

// Package config parses the ovkpoc demo CLI's profile configuration
// (spec section 5's clock/migration-window knobs, plus demo-run sizing)
// from flags, environment, and an optional config file, following the
// viper/pflag profile-loading convention used across the server configs
// in this codebase.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings holds everything the ovkpoc demo CLI needs to run a
// simulated multi-device registration/authentication/migration flow.
type Settings struct {
	Profile             string        `mapstructure:"profile"`
	NumDevices          int           `mapstructure:"num-devices"`
	MigrationWindow     time.Duration `mapstructure:"migration-window"`
	PBES2IterationCount int           `mapstructure:"pbes2-iteration-count"`
	LogLevel            string        `mapstructure:"log-level"`
}

// DefaultSettings returns the "demo" profile's values.
func DefaultSettings() *Settings {
	return &Settings{
		Profile:             "demo",
		NumDevices:          3,
		MigrationWindow:     3 * time.Minute,
		PBES2IterationCount: 1000,
		LogLevel:            "info",
	}
}

// ParseWithFlagSet parses args against fs, layering viper's env and
// config-file support over pflag-bound defaults, and validates the
// result.
func ParseWithFlagSet(fs *pflag.FlagSet, args []string) (*Settings, error) {
	defaults := DefaultSettings()

	fs.String("profile", defaults.Profile, "configuration profile (demo, ci)")
	fs.Int("num-devices", defaults.NumDevices, "number of devices to simulate in the ring negotiation")
	fs.Duration("migration-window", defaults.MigrationWindow, "OVK migration collection window (validated and logged; the service uses its built-in 3m window)")
	fs.Int("pbes2-iteration-count", defaults.PBES2IterationCount, "PBES2 PBKDF2 iteration count (validated and logged; the seed-negotiation envelope uses its built-in p2c of 1000)")
	fs.String("log-level", defaults.LogLevel, "slog level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("OVKPOC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	if configFile, _ := fs.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Parse delegates to ParseWithFlagSet using a fresh FlagSet, suitable
// for a cobra command's RunE.
func Parse(args []string) (*Settings, error) {
	fs := pflag.NewFlagSet("ovkpoc", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file overriding profile defaults")

	return ParseWithFlagSet(fs, args)
}

func validateSettings(s *Settings) error {
	var errs []string

	if s.NumDevices < 2 {
		errs = append(errs, "num-devices must be >= 2")
	}

	if s.MigrationWindow <= 0 {
		errs = append(errs, "migration-window must be > 0")
	}

	if s.PBES2IterationCount < 1 {
		errs = append(errs, "pbes2-iteration-count must be >= 1")
	}

	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log-level must be one of debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid settings: %s", strings.Join(errs, "; "))
	}

	return nil
}
