package tuning

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// State is a phase of the sweep state machine
type State int

const (
	StateBaseline State = iota
	StateSteppingFrequency
	StateSuspectedDrop
	StateConfirming
	StateEscalatingVoltage
	StateDone
	StateAborted
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateBaseline:
		return "baseline"
	case StateSteppingFrequency:
		return "stepping_frequency"
	case StateSuspectedDrop:
		return "suspected_drop"
	case StateConfirming:
		return "confirming"
	case StateEscalatingVoltage:
		return "escalating_voltage"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the sweep has finished in this state
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateInterrupted
}

// EventKind identifies a narration point of the sweep
type EventKind string

const (
	EventSweepStarted     EventKind = "sweep_started"
	EventStateChanged     EventKind = "state_changed"
	EventSettingApplied   EventKind = "setting_applied"
	EventSettingFailed    EventKind = "setting_failed"
	EventSettingMismatch  EventKind = "setting_mismatch"
	EventSettling         EventKind = "settling"
	EventWindowStarted    EventKind = "window_started"
	EventSampleProgress   EventKind = "sample_progress"
	EventSampleFailed     EventKind = "sample_failed"
	EventThermalAbort     EventKind = "thermal_abort"
	EventMeasured         EventKind = "measured"
	EventSuspectedDrop    EventKind = "suspected_drop"
	EventConfirmAttempt   EventKind = "confirm_attempt"
	EventConfirmResult    EventKind = "confirm_result"
	EventDropConfirmed    EventKind = "drop_confirmed"
	EventVoltageBumped    EventKind = "voltage_bumped"
	EventPointDiscarded   EventKind = "point_discarded"
	EventRecorded         EventKind = "recorded"
	EventNewBest          EventKind = "new_best"
	EventTemperatureLimit EventKind = "temperature_limit"
	EventSweepFinished    EventKind = "sweep_finished"
	EventResultsFlushed   EventKind = "results_flushed"
)

// Event carries the fields relevant to its kind; unrelated fields are zero
type Event struct {
	Kind     EventKind
	State    State
	From     State
	Setting  Setting
	Window   WindowResult
	Reading  Reading
	Tick     int
	Ticks    int
	Attempt  int
	Attempts int
	Coef     float64
	Best     float64
	Duration time.Duration
	Records  int
	Reason   string
	Err      error
}

// Observer receives sweep events as they happen
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ev Event)

// OnEvent calls f(ev)
func (f ObserverFunc) OnEvent(ev Event) {
	f(ev)
}

// MultiObserver fans events out to several observers in order
type MultiObserver []Observer

// OnEvent forwards ev to every observer
func (m MultiObserver) OnEvent(ev Event) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(ev)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}

// FormatHashrate renders a GH/s value with an SI prefix rounded to two
// decimals, e.g. "512.4 GH/s" or "1.11 TH/s". Values that would round up
// into the next prefix are truncated instead.
func FormatHashrate(ghs float64) string {
	v, prefix := humanize.ComputeSI(ghs * 1e9)
	if r := math.Round(v*100) / 100; r < 1000 {
		v = r
	}
	return humanize.FtoaWithDigits(v, 2) + " " + prefix + "H/s"
}

// LogObserver narrates the sweep through zap
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates an observer that logs every event
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnEvent logs ev at a level matching its severity
func (o *LogObserver) OnEvent(ev Event) {
	l := o.logger
	switch ev.Kind {
	case EventSweepStarted:
		l.Info("Starting overclock sweep",
			zap.Stringer("setting", ev.Setting),
			zap.Int("ladder_points", ev.Ticks),
		)
	case EventStateChanged:
		l.Debug("State changed",
			zap.Stringer("from", ev.From),
			zap.Stringer("to", ev.State),
		)
	case EventSettingApplied:
		l.Info("Setting applied",
			zap.Int("frequency", ev.Setting.Frequency),
			zap.Int("core_voltage", ev.Setting.CoreVoltage),
		)
	case EventSettingFailed:
		l.Error("Failed to apply setting",
			zap.Int("frequency", ev.Setting.Frequency),
			zap.Int("core_voltage", ev.Setting.CoreVoltage),
			zap.Error(ev.Err),
		)
	case EventSettingMismatch:
		l.Warn("Device reports a different setting",
			zap.Stringer("requested", ev.Setting),
			zap.Error(ev.Err),
		)
	case EventSettling:
		l.Info("Waiting for device to settle",
			zap.Stringer("setting", ev.Setting),
			zap.String("settle_time", ev.Duration.String()),
		)
	case EventWindowStarted:
		l.Info("Measuring hashrate",
			zap.Duration("duration", ev.Duration),
			zap.Int("samples", ev.Ticks),
		)
	case EventSampleProgress:
		l.Debug("Sample",
			zap.Int("tick", ev.Tick),
			zap.Int("ticks", ev.Ticks),
			zap.Float64("hashrate", ev.Reading.Hashrate),
			zap.Float64("temperature", ev.Reading.Temperature),
		)
	case EventSampleFailed:
		l.Warn("Device read failed, counting zero hashrate",
			zap.Int("tick", ev.Tick),
			zap.Error(ev.Err),
		)
	case EventThermalAbort:
		l.Warn("Temperature limit reached, aborting window",
			zap.Float64("temperature", ev.Reading.Temperature),
			zap.Int("tick", ev.Tick),
			zap.Int("ticks", ev.Ticks),
		)
	case EventMeasured:
		l.Info("Measurement result",
			zap.Stringer("setting", ev.Setting),
			zap.String("hashrate", FormatHashrate(ev.Window.Mean)),
			zap.Float64("avg", ev.Window.Mean),
			zap.Float64("stdev", ev.Window.StdDev),
			zap.Float64("coef", ev.Coef),
			zap.Float64("temperature", ev.Window.LastTemperature),
		)
	case EventSuspectedDrop:
		l.Info("Suspected undervoltage, confirming",
			zap.Stringer("setting", ev.Setting),
			zap.Float64("avg", ev.Window.Mean),
			zap.Float64("best", ev.Best),
		)
	case EventConfirmAttempt:
		l.Info("Confirming drop",
			zap.Int("attempt", ev.Attempt),
			zap.Int("attempts", ev.Attempts),
			zap.Stringer("setting", ev.Setting),
		)
	case EventConfirmResult:
		l.Info("Confirmation result",
			zap.Int("attempt", ev.Attempt),
			zap.Float64("avg", ev.Window.Mean),
			zap.Float64("stdev", ev.Window.StdDev),
			zap.Float64("coef", ev.Coef),
		)
	case EventDropConfirmed:
		l.Info("Confirmed drop, increasing voltage",
			zap.Stringer("setting", ev.Setting),
			zap.Float64("avg", ev.Window.Mean),
			zap.Float64("best", ev.Best),
		)
	case EventVoltageBumped:
		l.Info("Bumping voltage",
			zap.Int("frequency", ev.Setting.Frequency),
			zap.Int("core_voltage", ev.Setting.CoreVoltage),
		)
	case EventPointDiscarded:
		l.Info("Discarding frequency point",
			zap.Stringer("setting", ev.Setting),
			zap.String("reason", ev.Reason),
		)
	case EventRecorded:
		l.Debug("Recorded result",
			zap.Stringer("setting", ev.Setting),
			zap.Int("records", ev.Records),
		)
	case EventNewBest:
		l.Info("New best hashrate",
			zap.String("hashrate", FormatHashrate(ev.Best)),
			zap.Float64("best", ev.Best),
			zap.Stringer("setting", ev.Setting),
		)
	case EventTemperatureLimit:
		l.Warn("Stopping, temperature limit reached",
			zap.Float64("temperature", ev.Reading.Temperature),
			zap.Stringer("setting", ev.Setting),
		)
	case EventSweepFinished:
		l.Info("Sweep finished",
			zap.Stringer("state", ev.State),
			zap.String("reason", ev.Reason),
			zap.Int("records", ev.Records),
			zap.Float64("best", ev.Best),
		)
	case EventResultsFlushed:
		if ev.Err != nil {
			l.Error("Failed to write results", zap.Int("records", ev.Records), zap.Error(ev.Err))
			return
		}
		l.Info("Results written", zap.Int("records", ev.Records))
	default:
		l.Debug("Sweep event", zap.String("kind", string(ev.Kind)))
	}
}
