package tuning

import (
	"fmt"
	"time"
)

// Setting is a frequency/voltage pair applied atomically to the device
type Setting struct {
	Frequency   int `json:"frequency" yaml:"frequency"`     // MHz
	CoreVoltage int `json:"coreVoltage" yaml:"coreVoltage"` // mV
}

func (s Setting) String() string {
	return fmt.Sprintf("%d MHz @ %d mV", s.Frequency, s.CoreVoltage)
}

// Reading is a single point-in-time device sample
type Reading struct {
	Hashrate    float64 // GH/s
	Temperature float64 // Celsius
}

// WindowResult aggregates one measurement window.
// Mean and StdDev carry no meaning when Aborted is set.
type WindowResult struct {
	Mean            float64
	StdDev          float64
	LastTemperature float64
	Aborted         bool
	Samples         int
}

// HasValue reports whether the window produced a usable measurement
func (w WindowResult) HasValue() bool {
	return !w.Aborted && w.Samples > 0
}

// Coefficient returns the coefficient of variation of the window
func (w WindowResult) Coefficient() float64 {
	return CoefficientOfVariation(w.Mean, w.StdDev)
}

// CoefficientOfVariation returns stdev/mean, or 0 when mean is not positive
func CoefficientOfVariation(mean, stdev float64) float64 {
	if mean > 0 {
		return stdev / mean
	}
	return 0
}

// TuningRecord is one tested configuration in the result log
type TuningRecord struct {
	Setting     `yaml:",inline"`
	Hashrate    float64 `json:"hashrate" yaml:"hashrate"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	StdDev      float64 `json:"stdev" yaml:"stdev"`
}

// NewRecord builds a record from a completed window
func NewRecord(s Setting, w WindowResult) TuningRecord {
	return TuningRecord{
		Setting:     s,
		Hashrate:    w.Mean,
		Temperature: w.LastTemperature,
		StdDev:      w.StdDev,
	}
}

// RecordLog is the append-only result log of one sweep
type RecordLog struct {
	records []TuningRecord
}

// Append adds a record to the end of the log
func (l *RecordLog) Append(r TuningRecord) {
	l.records = append(l.records, r)
}

// Len returns the number of records
func (l *RecordLog) Len() int {
	return len(l.records)
}

// Records returns a copy of the log in insertion order
func (l *RecordLog) Records() []TuningRecord {
	out := make([]TuningRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Ladder describes an inclusive, fixed-step range
type Ladder struct {
	Start int
	End   int
	Step  int
}

// Params is the immutable parameter set of a sweep
type Params struct {
	Frequency Ladder
	Voltage   Ladder // End is the voltage ceiling

	SettleTime time.Duration

	MeasureDuration time.Duration
	MeasureInterval time.Duration

	ConfirmDuration time.Duration
	ConfirmInterval time.Duration
	ConfirmAttempts int

	TempLimit          float64
	HashrateTolerance  float64
	CoefficientCeiling float64

	VerifySetting bool
}

// DefaultParams returns the stock Bitaxe Gamma sweep parameters
func DefaultParams() Params {
	return Params{
		Frequency:          Ladder{Start: 525, End: 875, Step: 5},
		Voltage:            Ladder{Start: 1150, End: 1250, Step: 10},
		SettleTime:         180 * time.Second,
		MeasureDuration:    180 * time.Second,
		MeasureInterval:    time.Second,
		ConfirmDuration:    60 * time.Second,
		ConfirmInterval:    time.Second,
		ConfirmAttempts:    2,
		TempLimit:          60,
		HashrateTolerance:  0.90,
		CoefficientCeiling: 0.12,
	}
}

// Stable reports whether a coefficient of variation is within the stability threshold
func (p Params) Stable(coef float64) bool {
	return coef <= p.CoefficientCeiling
}

// BelowTolerance reports whether mean is a regression against best
func (p Params) BelowTolerance(mean, best float64) bool {
	return mean < best*p.HashrateTolerance
}

// Points returns the number of rungs on the ladder
func (l Ladder) Points() int {
	if l.Step <= 0 || l.End < l.Start {
		return 0
	}
	return (l.End-l.Start)/l.Step + 1
}

// Validate checks the parameters for internal consistency
func (p Params) Validate() error {
	switch {
	case p.Frequency.Step <= 0:
		return fmt.Errorf("%w: frequency step must be positive", ErrInvalidParams)
	case p.Frequency.Start <= 0 || p.Frequency.End < p.Frequency.Start:
		return fmt.Errorf("%w: frequency range %d..%d", ErrInvalidParams, p.Frequency.Start, p.Frequency.End)
	case p.Voltage.Step <= 0:
		return fmt.Errorf("%w: voltage step must be positive", ErrInvalidParams)
	case p.Voltage.Start <= 0 || p.Voltage.End < p.Voltage.Start:
		return fmt.Errorf("%w: voltage range %d..%d", ErrInvalidParams, p.Voltage.Start, p.Voltage.End)
	case p.SettleTime < 0:
		return fmt.Errorf("%w: settle time cannot be negative", ErrInvalidParams)
	case p.MeasureInterval <= 0 || p.MeasureDuration < p.MeasureInterval:
		return fmt.Errorf("%w: measure window %s/%s", ErrInvalidParams, p.MeasureDuration, p.MeasureInterval)
	case p.ConfirmInterval <= 0 || p.ConfirmDuration < p.ConfirmInterval:
		return fmt.Errorf("%w: confirm window %s/%s", ErrInvalidParams, p.ConfirmDuration, p.ConfirmInterval)
	case p.ConfirmAttempts < 1:
		return fmt.Errorf("%w: confirm attempts must be at least 1", ErrInvalidParams)
	case p.TempLimit <= 0:
		return fmt.Errorf("%w: temperature limit must be positive", ErrInvalidParams)
	case p.HashrateTolerance <= 0 || p.HashrateTolerance > 1:
		return fmt.Errorf("%w: hashrate tolerance must be in (0, 1]", ErrInvalidParams)
	case p.CoefficientCeiling <= 0:
		return fmt.Errorf("%w: coefficient of variation threshold must be positive", ErrInvalidParams)
	}
	return nil
}

// ConfirmedDrop reports whether a confirmation verdict calls for more voltage.
// Only the confirmed mean counts; a noisy early return that is still below
// tolerance escalates too.
func (p Params) ConfirmedDrop(r ConfirmResult, best float64) bool {
	return !r.NoValue() && p.BelowTolerance(r.Mean, best)
}
