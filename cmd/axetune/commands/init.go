package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shizukutanaka/axetune/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write ` + config.DefaultFile + ` with the stock Bitaxe Gamma sweep parameters.
Set device.address before running "axetune tune".`,
		RunE: runInit,
	}

	cmd.Flags().String("config-dir", ".", "Configuration directory")
	cmd.Flags().String("ip", "", "device address to store in the file")
	cmd.Flags().Bool("force", false, "Overwrite existing configuration")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, _ := cmd.Flags().GetString("config-dir")
	address, _ := cmd.Flags().GetString("ip")
	force, _ := cmd.Flags().GetBool("force")

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(configDir, config.DefaultFile)
	if !force && fileExists(path) {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}

	cfg := config.Default()
	cfg.Device.Address = address
	if err := config.Save(cfg, path); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Configuration written to %s\n", path)
	fmt.Fprintln(w, "\nNext steps:")
	if address == "" {
		fmt.Fprintln(w, "  1. Set device.address to your Bitaxe's IP")
	} else {
		fmt.Fprintln(w, "  1. Review the sweep limits for your cooling")
	}
	fmt.Fprintf(w, "  2. Run 'axetune tune --config %s'\n", path)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
