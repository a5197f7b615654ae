package commands

import (
	"fmt"
	"os"

	"github.com/shizukutanaka/axetune/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const Version = "1.0.0"

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "axetune",
		Short: "Overclock sweep controller for Bitaxe/AxeOS miners",
		Long: `axetune walks a Bitaxe through a ladder of ASIC frequencies, measuring the
hashrate and temperature at each step. When the hashrate drops and stays down,
it raises the core voltage until the drop recovers or the voltage ceiling is
reached, and it stops when the chip reaches the temperature limit.

Every tested configuration is written to a CSV result log that "axetune analyze"
turns into a recommendation.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default is ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`axetune {{.Version}}
Overclock sweep controller for Bitaxe/AxeOS miners
`)

	rootCmd.AddCommand(
		newTuneCmd(),
		newStatusCmd(),
		newAnalyzeCmd(),
		newInitCmd(),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on error
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration, letting the named flags of cmd override
// their config keys
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	flags := map[string]*pflag.Flag{
		"log_level": cmd.Flags().Lookup("log-level"),
	}
	for key, name := range bindings {
		flags[key] = cmd.Flags().Lookup(name)
	}

	cfg, err := config.Load(path, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
