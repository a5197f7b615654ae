package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shizukutanaka/axetune/internal/device"
	"github.com/shizukutanaka/axetune/internal/tuning"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show device status",
		Long:  `Display the current frequency, voltage, hashrate, temperature, and power of a Bitaxe.`,
		RunE:  runStatus,
	}

	cmd.Flags().String("ip", "", "device address (host, host:port or URL)")
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig(cmd, map[string]string{"device.address": "ip"})
	if err != nil {
		return err
	}
	if err := cfg.RequireDevice(); err != nil {
		return err
	}

	client, err := device.NewClient(zap.NewNop(), cfg.DeviceClientConfig())
	if err != nil {
		return err
	}

	info, err := client.Info(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	w := cmd.OutOrStdout()
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "yaml":
		data, err := yaml.Marshal(info)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "table":
		displayStatus(w, client.URL(), info)
		return nil
	default:
		return fmt.Errorf("unknown format %q (must be table, json, or yaml)", format)
	}
}

func displayStatus(w io.Writer, url string, info *device.SystemInfo) {
	fmt.Fprintf(w, "%s (%s)\n\n", info.Hostname, url)

	fmt.Fprintln(w, "Device:")
	fmt.Fprintf(w, "  ASIC         : %s\n", info.ASICModel)
	fmt.Fprintf(w, "  Firmware     : %s\n", info.Version)
	fmt.Fprintf(w, "  Uptime       : %s\n", uptime(info.UptimeSeconds))

	fmt.Fprintln(w, "\nSetting:")
	fmt.Fprintf(w, "  Configured   : %s\n", info.Setting())
	fmt.Fprintf(w, "  Core voltage : %.0f mV measured\n", info.CoreVoltageActual)

	fmt.Fprintln(w, "\nPerformance:")
	fmt.Fprintf(w, "  Hashrate     : %s\n", tuning.FormatHashrate(info.HashRate))
	fmt.Fprintf(w, "  ASIC temp    : %.1f°C\n", info.Temp)
	fmt.Fprintf(w, "  VR temp      : %.1f°C\n", info.VRTemp)
	fmt.Fprintf(w, "  Power        : %.1f W\n", info.Power)
	if info.Power > 0 && info.HashRate > 0 {
		fmt.Fprintf(w, "  Efficiency   : %.2f J/TH\n", info.Power/(info.HashRate/1000))
	}
	fmt.Fprintf(w, "  Fan          : %.0f%% (%s rpm)\n", info.FanSpeed, humanize.Comma(int64(info.FanRPM)))
	fmt.Fprintf(w, "  Shares       : %s accepted, %s rejected\n",
		humanize.Comma(info.SharesAccepted), humanize.Comma(info.SharesRejected))
	if info.BestDiff != "" {
		fmt.Fprintf(w, "  Best diff    : %s\n", info.BestDiff)
	}
}

// uptime renders seconds as e.g. "3 days"
func uptime(seconds int64) string {
	if seconds <= 0 {
		return "n/a"
	}
	now := time.Now()
	return strings.TrimSpace(humanize.RelTime(now.Add(-time.Duration(seconds)*time.Second), now, "", ""))
}
