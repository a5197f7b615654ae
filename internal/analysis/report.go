package analysis

import (
	"errors"
	"sort"

	"github.com/shizukutanaka/axetune/internal/tuning"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Composite score weights and list length
const (
	HashrateWeight  = 0.6
	StabilityWeight = 0.4
	TopN            = 5
)

var (
	// ErrNoRecords is returned when there is nothing to analyze
	ErrNoRecords = errors.New("no tuning records to analyze")
)

// Entry is a record with its composite score
type Entry struct {
	tuning.TuningRecord `yaml:",inline"`
	Score               float64 `json:"score" yaml:"score"`
}

// Overview summarizes the tested search space
type Overview struct {
	Configurations int     `json:"configurations" yaml:"configurations"`
	FrequencyMin   int     `json:"frequencyMin" yaml:"frequencyMin"`
	FrequencyMax   int     `json:"frequencyMax" yaml:"frequencyMax"`
	Voltages       []int   `json:"voltages" yaml:"voltages"`
	TemperatureMin float64 `json:"temperatureMin" yaml:"temperatureMin"`
	TemperatureMax float64 `json:"temperatureMax" yaml:"temperatureMax"`
}

// TemperatureGroup aggregates records that ended at the same temperature
type TemperatureGroup struct {
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	Count        int     `json:"count" yaml:"count"`
	MeanHashrate float64 `json:"meanHashrate" yaml:"meanHashrate"`
	MeanStdDev   float64 `json:"meanStdev" yaml:"meanStdev"`
}

// VoltageGroup aggregates records tested at the same core voltage
type VoltageGroup struct {
	CoreVoltage  int     `json:"coreVoltage" yaml:"coreVoltage"`
	Count        int     `json:"count" yaml:"count"`
	MeanHashrate float64 `json:"meanHashrate" yaml:"meanHashrate"`
	MaxHashrate  float64 `json:"maxHashrate" yaml:"maxHashrate"`
	MeanStdDev   float64 `json:"meanStdev" yaml:"meanStdev"`
	MinStdDev    float64 `json:"minStdev" yaml:"minStdev"`
}

// Report is the post-hoc analysis of a result log
type Report struct {
	Overview        Overview           `json:"overview" yaml:"overview"`
	HighestHashrate Entry              `json:"highestHashrate" yaml:"highestHashrate"`
	MostStable      Entry              `json:"mostStable" yaml:"mostStable"`
	BestBalance     Entry              `json:"bestBalance" yaml:"bestBalance"`
	TopHashrate     []Entry            `json:"topHashrate" yaml:"topHashrate"`
	TopStable       []Entry            `json:"topStable" yaml:"topStable"`
	TopBalanced     []Entry            `json:"topBalanced" yaml:"topBalanced"`
	Temperatures    []TemperatureGroup `json:"temperatures" yaml:"temperatures"`
	Voltages        []VoltageGroup     `json:"voltages" yaml:"voltages"`
}

// Recommendation returns the configuration to run long term
func (r *Report) Recommendation() Entry {
	return r.BestBalance
}

// Analyze builds a report over records
func Analyze(records []tuning.TuningRecord) (*Report, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	n := len(records)
	hashrates := make([]float64, n)
	stdevs := make([]float64, n)
	temps := make([]float64, n)
	freqs := make([]float64, n)
	for i, r := range records {
		hashrates[i] = r.Hashrate
		stdevs[i] = r.StdDev
		temps[i] = r.Temperature
		freqs[i] = float64(r.Frequency)
	}

	hrNorm := normalize(hashrates)
	sdNorm := normalize(stdevs)
	entries := make([]Entry, n)
	for i, r := range records {
		entries[i] = Entry{
			TuningRecord: r,
			Score:        HashrateWeight*hrNorm[i] + StabilityWeight*(1-sdNorm[i]),
		}
	}

	byHashrate := rank(entries, func(a, b Entry) bool { return a.Hashrate > b.Hashrate })
	byStability := rank(entries, func(a, b Entry) bool { return a.StdDev < b.StdDev })
	byScore := rank(entries, func(a, b Entry) bool { return a.Score > b.Score })

	return &Report{
		Overview: Overview{
			Configurations: n,
			FrequencyMin:   int(floats.Min(freqs)),
			FrequencyMax:   int(floats.Max(freqs)),
			Voltages:       voltages(records),
			TemperatureMin: floats.Min(temps),
			TemperatureMax: floats.Max(temps),
		},
		HighestHashrate: byHashrate[0],
		MostStable:      byStability[0],
		BestBalance:     byScore[0],
		TopHashrate:     top(byHashrate),
		TopStable:       top(byStability),
		TopBalanced:     top(byScore),
		Temperatures:    groupByTemperature(records),
		Voltages:        groupByVoltage(records),
	}, nil
}

// normalize min-max scales xs into [0, 1]; a zero range maps to 0
func normalize(xs []float64) []float64 {
	lo, hi := floats.Min(xs), floats.Max(xs)
	out := make([]float64, len(xs))
	if hi == lo {
		return out
	}
	for i, x := range xs {
		out[i] = (x - lo) / (hi - lo)
	}
	return out
}

// rank returns a sorted copy; ties keep log order
func rank(entries []Entry, less func(a, b Entry) bool) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func top(ranked []Entry) []Entry {
	if len(ranked) > TopN {
		return ranked[:TopN]
	}
	return ranked
}

func voltages(records []tuning.TuningRecord) []int {
	seen := make(map[int]bool)
	var out []int
	for _, r := range records {
		if !seen[r.CoreVoltage] {
			seen[r.CoreVoltage] = true
			out = append(out, r.CoreVoltage)
		}
	}
	sort.Ints(out)
	return out
}

func groupByTemperature(records []tuning.TuningRecord) []TemperatureGroup {
	groups := make(map[float64][]tuning.TuningRecord)
	for _, r := range records {
		groups[r.Temperature] = append(groups[r.Temperature], r)
	}

	out := make([]TemperatureGroup, 0, len(groups))
	for temp, rs := range groups {
		hr, sd := columns(rs)
		out = append(out, TemperatureGroup{
			Temperature:  temp,
			Count:        len(rs),
			MeanHashrate: stat.Mean(hr, nil),
			MeanStdDev:   stat.Mean(sd, nil),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Temperature < out[j].Temperature })
	return out
}

func groupByVoltage(records []tuning.TuningRecord) []VoltageGroup {
	groups := make(map[int][]tuning.TuningRecord)
	for _, r := range records {
		groups[r.CoreVoltage] = append(groups[r.CoreVoltage], r)
	}

	out := make([]VoltageGroup, 0, len(groups))
	for cv, rs := range groups {
		hr, sd := columns(rs)
		out = append(out, VoltageGroup{
			CoreVoltage:  cv,
			Count:        len(rs),
			MeanHashrate: stat.Mean(hr, nil),
			MaxHashrate:  floats.Max(hr),
			MeanStdDev:   stat.Mean(sd, nil),
			MinStdDev:    floats.Min(sd),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CoreVoltage < out[j].CoreVoltage })
	return out
}

func columns(rs []tuning.TuningRecord) (hashrates, stdevs []float64) {
	hashrates = make([]float64, len(rs))
	stdevs = make([]float64, len(rs))
	for i, r := range rs {
		hashrates[i] = r.Hashrate
		stdevs[i] = r.StdDev
	}
	return hashrates, stdevs
}
