package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "reaper",
		Short: "Tag-driven EC2 lifecycle enforcement",
		Long: `Reaper - Tag-driven EC2 Lifecycle Enforcement

Reaper terminates EC2 instances that outlive their declared lifetime.
Every instance must carry a lifetime tag (e.g. "3d") or an explicit
termination_date; instances that never declare one, or whose expiry
has passed, are terminated.

Destructive actions are armed only when LIVE_MODE=true is set in the
environment. Without it every run is a dry run: same decisions, same
logs, no API writes.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.SetVersionTemplate(`Reaper {{.Version}} - Tag-driven EC2 Lifecycle Enforcement
`)
}
