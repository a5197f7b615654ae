package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shizukutanaka/axetune/internal/device"
	"github.com/shizukutanaka/axetune/internal/logging"
	"github.com/shizukutanaka/axetune/internal/monitoring"
	"github.com/shizukutanaka/axetune/internal/results"
	"github.com/shizukutanaka/axetune/internal/tuning"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Run an overclock sweep",
		Long: `Run an overclock sweep against one Bitaxe.

The sweep measures a baseline at the lowest frequency and voltage, then steps
the frequency up. A hashrate drop below the tolerance of the best result is
confirmed with shorter windows and answered with more core voltage. The sweep
ends when the ladder is exhausted or the temperature limit is reached.

Examples:
  # Sweep with defaults
  axetune tune --ip 192.168.1.42

  # Sweep with a config file and a custom result log
  axetune tune --config axetune.yaml --output gamma.csv`,
		RunE: runTune,
	}

	cmd.Flags().String("ip", "", "device address (host, host:port or URL)")
	cmd.Flags().String("output", "", "result log CSV path")
	cmd.Flags().String("metrics-file", "", "write final metrics to this Prometheus textfile")
	return cmd
}

func runTune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"device.address":          "ip",
		"output.results_csv":      "output",
		"output.metrics_textfile": "metrics-file",
	})
	if err != nil {
		return err
	}
	if err := cfg.RequireDevice(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	client, err := device.NewClient(logger.Named("device"), cfg.DeviceClientConfig())
	if err != nil {
		return err
	}

	sink := results.NewCSVSink(logger.Named("results"), cfg.Output.ResultsCSV)
	metrics := monitoring.NewMetricsObserver(logger.Named("metrics"), runID)
	observer := tuning.MultiObserver{
		tuning.NewLogObserver(logger.Named("sweep")),
		metrics,
	}

	params := cfg.TuningParams()
	ctrl, err := tuning.NewController(logger, params, client, sink, tuning.WithObserver(observer))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()

	logger.Info("Starting axetune",
		zap.String("version", Version),
		zap.String("device", client.URL()),
		zap.String("results", sink.Path()),
		zap.String("estimated_duration", strings.TrimSpace(humanize.RelTime(started, started.Add(estimate(params)), "", ""))),
	)

	out, runErr := ctrl.Run(ctx)

	if cfg.Output.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsTextfile); err != nil {
			logger.Warn("Failed to write metrics", zap.Error(err))
		}
	}

	if out != nil {
		printSummary(cmd.OutOrStdout(), out, sink.Path(), time.Since(started))
	}
	return runErr
}

// estimate returns the sweep length when every point passes on the first try
func estimate(p tuning.Params) time.Duration {
	perPoint := p.SettleTime + p.MeasureDuration
	return time.Duration(p.Frequency.Points()+1) * perPoint
}

func printSummary(w io.Writer, out *tuning.Outcome, path string, elapsed time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sweep Summary:")
	fmt.Fprintf(w, "  Result       : %s (%s)\n", out.State, out.Reason)
	fmt.Fprintf(w, "  Duration     : %s\n", elapsed.Round(time.Second))
	fmt.Fprintf(w, "  Records      : %d (%s)\n", len(out.Records), path)
	if out.Best > 0 {
		fmt.Fprintf(w, "  Best         : %s at %s\n", tuning.FormatHashrate(out.Best), out.BestSetting)
	}
	fmt.Fprintf(w, "  Last setting : %s\n", out.Final)
}
