// Copyright (c) 2025 Justin Cranford
//
//

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ovkpoc",
		Short: "OVK multi-device authenticator proof of concept",
		Long: `ovkpoc - Ownership Verification Key multi-device authenticator demo.

Simulates a ring of devices negotiating a shared Seed, registering a
credential with a Service, seamlessly enrolling additional devices
under the same Seed, and rotating the Seed to trigger an OVK
migration.`,
	}

	rootCmd.AddCommand(newRunCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
