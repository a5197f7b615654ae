package commands

import (
	"github.com/shizukutanaka/axetune/internal/analysis"
	"github.com/shizukutanaka/axetune/internal/results"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [results.csv]",
		Short: "Analyze a sweep result log",
		Long: `Analyze a result log written by "axetune tune" and recommend a configuration.

Reports the highest hashrate, the most stable configuration (lowest standard
deviation), and the best balance of the two, plus per-temperature and
per-voltage breakdowns. Without an argument the configured result log is read.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAnalyze,
	}

	cmd.Flags().String("format", analysis.FormatTable, "Output format (table, json, yaml)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}
		path = cfg.Output.ResultsCSV
	}

	records, err := results.ReadFile(path)
	if err != nil {
		return err
	}

	report, err := analysis.Analyze(records)
	if err != nil {
		return err
	}
	return analysis.Write(cmd.OutOrStdout(), report, format)
}
