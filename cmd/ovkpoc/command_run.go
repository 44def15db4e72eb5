// Copyright (c) 2025 Justin Cranford

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ovkpocConfig "ovkpoc/internal/ovkpoc/config"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Run a simulated multi-device registration, login, and migration flow",
		Long: `run simulates the OVK protocol end to end: a ring of devices
negotiates a shared Seed, the first device registers with a Service,
later devices enroll seamlessly under the same Seed, and a seed
rotation drives an OVK migration to quorum.

Flags: --profile, --num-devices, --migration-window,
--pbes2-iteration-count, --log-level, --config.`,
		// Flag parsing is delegated to ovkpocConfig.Parse so the CLI and
		// any future non-cobra caller share one flag definition.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ovkpocConfig.Parse(args)
			if err != nil {
				return fmt.Errorf("parse config: %w", err)
			}

			logger := newLogger(cfg.LogLevel)
			logger.Info("starting ovkpoc demo", "profile", cfg.Profile, "num_devices", cfg.NumDevices)

			if err := runDemo(logger, cfg); err != nil {
				return fmt.Errorf("run demo: %w", err)
			}

			return nil
		},
	}

	return cmd
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		slogLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
