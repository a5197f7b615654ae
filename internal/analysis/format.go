package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Write renders the report in the given format
func Write(w io.Writer, r *Report, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case FormatTable, "":
		return WriteTable(w, r)
	default:
		return fmt.Errorf("unknown format %q (must be table, json, or yaml)", format)
	}
}

// WriteTable renders the report for a terminal
func WriteTable(w io.Writer, r *Report) error {
	p := &printer{w: w}
	o := r.Overview

	p.line("Tuning Analysis")
	p.line("")
	p.line("Configurations tested : %d", o.Configurations)
	p.line("Frequency range       : %d-%d MHz", o.FrequencyMin, o.FrequencyMax)
	p.line("Voltage levels        : %s mV", joinInts(o.Voltages))
	p.line("Temperature range     : %.1f-%.1f°C", o.TemperatureMin, o.TemperatureMax)

	p.section("Highest hashrate")
	p.detail(r.HighestHashrate, false)
	p.section("Most stable (lowest stdev)")
	p.detail(r.MostStable, false)
	p.section(fmt.Sprintf("Best balance (%.0f%% hashrate, %.0f%% stability)", HashrateWeight*100, StabilityWeight*100))
	p.detail(r.BestBalance, true)

	p.section(fmt.Sprintf("Top %d by hashrate", TopN))
	p.ranking(r.TopHashrate, false)
	p.section(fmt.Sprintf("Top %d most stable", TopN))
	p.ranking(r.TopStable, false)
	p.section(fmt.Sprintf("Top %d balanced", TopN))
	p.ranking(r.TopBalanced, true)

	p.section("Temperature")
	for _, g := range r.Temperatures {
		p.line("  %.1f°C: %d configs, avg hashrate %s, avg stdev %.1f",
			g.Temperature, g.Count, hashrate(g.MeanHashrate), g.MeanStdDev)
	}

	p.section("Voltage")
	for _, g := range r.Voltages {
		p.line("  %d mV: %d configs, avg hashrate %s, max hashrate %s, avg stdev %.1f, best stdev %.1f",
			g.CoreVoltage, g.Count, hashrate(g.MeanHashrate), hashrate(g.MaxHashrate), g.MeanStdDev, g.MinStdDev)
	}

	rec := r.Recommendation()
	p.section("Recommendation")
	p.line("  %s: %s, %.1f°C, stdev %.1f", rec.Setting, hashrate(rec.Hashrate), rec.Temperature, rec.StdDev)
	p.line("  Max hashrate : %s (%s, stdev %.1f)", r.HighestHashrate.Setting, hashrate(r.HighestHashrate.Hashrate), r.HighestHashrate.StdDev)
	p.line("  Max stability: %s (%s, stdev %.1f)", r.MostStable.Setting, hashrate(r.MostStable.Hashrate), r.MostStable.StdDev)

	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) section(title string) {
	p.line("")
	p.line("%s:", title)
}

func (p *printer) detail(e Entry, score bool) {
	p.line("  Frequency   : %d MHz", e.Frequency)
	p.line("  Voltage     : %d mV", e.CoreVoltage)
	p.line("  Hashrate    : %s", hashrate(e.Hashrate))
	p.line("  Temperature : %.1f°C", e.Temperature)
	p.line("  Stdev       : %.1f", e.StdDev)
	if score {
		p.line("  Score       : %.3f", e.Score)
	}
}

func (p *printer) ranking(entries []Entry, score bool) {
	for i, e := range entries {
		if score {
			p.line("  %d. %s: %s (stdev %.1f, score %.3f)", i+1, e.Setting, hashrate(e.Hashrate), e.StdDev, e.Score)
			continue
		}
		p.line("  %d. %s: %s (stdev %.1f)", i+1, e.Setting, hashrate(e.Hashrate), e.StdDev)
	}
}

// hashrate renders GH/s with one decimal and thousands separators
func hashrate(ghs float64) string {
	return humanize.FormatFloat("#,###.#", ghs) + " GH/s"
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
