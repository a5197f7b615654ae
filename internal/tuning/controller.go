package tuning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Stop reasons reported in Outcome.Reason
const (
	ReasonLadderExhausted  = "ladder exhausted"
	ReasonTemperatureLimit = "temperature limit"
	ReasonThermalAbort     = "thermal abort"
	ReasonBaselineFailed   = "baseline failed"
	ReasonInterrupted      = "interrupted"
)

// Outcome summarizes a finished sweep
type Outcome struct {
	State       State
	Reason      string
	Records     []TuningRecord
	Best        float64
	BestSetting Setting
	Final       Setting
}

// Controller walks the frequency ladder and escalates voltage on confirmed drops
type Controller struct {
	logger    *zap.Logger
	params    Params
	device    Device
	sink      ResultSink
	clock     Clock
	observer  Observer
	window    *Window
	confirmer *Confirmer
}

// Option customizes a Controller
type Option func(*Controller)

// WithClock replaces the wall clock used for settle and sampling waits
func WithClock(clock Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithObserver sets the event observer
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// NewController creates a sweep controller
func NewController(logger *zap.Logger, p Params, device Device, sink ResultSink, opts ...Option) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if device == nil {
		return nil, errors.New("device is required")
	}
	if sink == nil {
		return nil, errors.New("result sink is required")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		logger:   logger,
		params:   p,
		device:   device,
		sink:     sink,
		clock:    RealClock{},
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}

	c.window = NewWindow(device, c.clock, c.observer, p.TempLimit)
	c.confirmer = NewConfirmer(c.window, c.observer, p)
	return c, nil
}

// Run executes one complete sweep. The accumulated records are written to the
// result sink before Run returns, whatever the terminal state.
func (c *Controller) Run(ctx context.Context) (*Outcome, error) {
	r := &sweep{
		c:       c,
		setting: Setting{Frequency: c.params.Frequency.Start, CoreVoltage: c.params.Voltage.Start},
		state:   StateBaseline,
	}

	c.logger.Debug("Sweep parameters",
		zap.Int("freq_start", c.params.Frequency.Start),
		zap.Int("freq_end", c.params.Frequency.End),
		zap.Int("freq_step", c.params.Frequency.Step),
		zap.Int("cv_start", c.params.Voltage.Start),
		zap.Int("cv_max", c.params.Voltage.End),
		zap.Int("cv_step", c.params.Voltage.Step),
		zap.Duration("settle_time", c.params.SettleTime),
		zap.Float64("temp_limit", c.params.TempLimit),
		zap.Float64("hashrate_tolerance", c.params.HashrateTolerance),
		zap.Float64("coef_threshold", c.params.CoefficientCeiling),
	)

	c.observer.OnEvent(Event{
		Kind:    EventSweepStarted,
		Setting: r.setting,
		Ticks:   c.params.Frequency.Points(),
	})

	runErr := r.execute(ctx)

	out := &Outcome{
		State:       r.state,
		Reason:      r.reason,
		Records:     r.log.Records(),
		Best:        r.best,
		BestSetting: r.bestSetting,
		Final:       r.setting,
	}
	c.observer.OnEvent(Event{
		Kind:    EventSweepFinished,
		State:   out.State,
		Reason:  out.Reason,
		Records: len(out.Records),
		Best:    out.Best,
		Setting: out.Final,
	})

	flushErr := c.sink.Write(out.Records)
	c.observer.OnEvent(Event{Kind: EventResultsFlushed, Records: len(out.Records), Err: flushErr})
	if flushErr != nil {
		flushErr = fmt.Errorf("failed to write results: %w", flushErr)
	}

	return out, errors.Join(runErr, flushErr)
}

// sweep holds the mutable state of one run
type sweep struct {
	c *Controller

	setting     Setting
	best        float64
	bestSetting Setting
	log         RecordLog

	state  State
	reason string
}

func (r *sweep) enter(s State) {
	if r.state == s {
		return
	}
	r.c.observer.OnEvent(Event{Kind: EventStateChanged, From: r.state, State: s, Setting: r.setting})
	r.state = s
}

func (r *sweep) stop(s State, reason string) {
	r.enter(s)
	r.reason = reason
}

// interrupted ends the sweep when ctx is done
func (r *sweep) interrupted(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	r.stop(StateInterrupted, ReasonInterrupted)
	return true
}

func (r *sweep) execute(ctx context.Context) error {
	p := r.c.params

	base := r.applyAndMeasure(ctx)
	if r.interrupted(ctx) {
		return nil
	}
	if !base.HasValue() {
		r.stop(StateAborted, ReasonBaselineFailed)
		return ErrBaselineFailed
	}
	r.c.observer.OnEvent(Event{Kind: EventMeasured, Setting: r.setting, Window: base, Coef: base.Coefficient()})
	r.record(base)
	r.best = base.Mean
	r.bestSetting = r.setting
	r.c.observer.OnEvent(Event{Kind: EventNewBest, Setting: r.setting, Best: r.best, Reason: "baseline"})

	for f := p.Frequency.Start + p.Frequency.Step; f <= p.Frequency.End; f += p.Frequency.Step {
		r.enter(StateSteppingFrequency)
		r.setting.Frequency = f

		w := r.applyAndMeasure(ctx)
		if r.interrupted(ctx) {
			return nil
		}
		if w.Aborted {
			r.stop(StateAborted, ReasonThermalAbort)
			return nil
		}
		if !w.HasValue() {
			r.discard("no samples")
			continue
		}

		coef := w.Coefficient()
		r.c.observer.OnEvent(Event{Kind: EventMeasured, Setting: r.setting, Window: w, Coef: coef})

		latest := w
		lastTemp := w.LastTemperature
		escalationAborted := false

		if p.Stable(coef) && p.BelowTolerance(w.Mean, r.best) {
			r.enter(StateSuspectedDrop)
			r.c.observer.OnEvent(Event{Kind: EventSuspectedDrop, Setting: r.setting, Window: w, Coef: coef, Best: r.best})

			r.enter(StateConfirming)
			conf := r.c.confirmer.Confirm(ctx, p.ConfirmAttempts, r.setting, r.best, p.HashrateTolerance)
			if r.interrupted(ctx) {
				return nil
			}
			if conf.NoValue() {
				r.discard("confirmation produced no value")
				continue
			}

			if p.ConfirmedDrop(conf, r.best) {
				r.c.observer.OnEvent(Event{
					Kind:    EventDropConfirmed,
					Setting: r.setting,
					Window:  WindowResult{Mean: conf.Mean},
					Coef:    conf.Coef,
					Best:    r.best,
				})
				r.enter(StateEscalatingVoltage)
				latest, lastTemp, escalationAborted = r.escalate(ctx, conf, latest)
				if r.interrupted(ctx) {
					return nil
				}
			}
		}

		r.record(latest)
		if p.Stable(latest.Coefficient()) && latest.Mean > r.best {
			r.best = latest.Mean
			r.bestSetting = r.setting
			r.c.observer.OnEvent(Event{Kind: EventNewBest, Setting: r.setting, Best: r.best})
		}

		if lastTemp >= p.TempLimit {
			r.c.observer.OnEvent(Event{
				Kind:    EventTemperatureLimit,
				Setting: r.setting,
				Reading: Reading{Temperature: lastTemp},
			})
			if escalationAborted {
				r.stop(StateAborted, ReasonThermalAbort)
			} else {
				r.stop(StateDone, ReasonTemperatureLimit)
			}
			return nil
		}
	}

	r.stop(StateDone, ReasonLadderExhausted)
	return nil
}

// escalate raises the core voltage one step at a time until the drop clears
// or the ceiling is reached. It returns the most recent completed full window,
// the most recent temperature seen and whether a full window aborted.
func (r *sweep) escalate(ctx context.Context, conf ConfirmResult, latest WindowResult) (WindowResult, float64, bool) {
	p := r.c.params
	lastTemp := latest.LastTemperature

	for r.setting.CoreVoltage < p.Voltage.End && p.ConfirmedDrop(conf, r.best) {
		v := r.setting.CoreVoltage + p.Voltage.Step
		if v > p.Voltage.End {
			v = p.Voltage.End
		}
		r.setting.CoreVoltage = v
		r.c.observer.OnEvent(Event{Kind: EventVoltageBumped, Setting: r.setting})

		w := r.applyAndMeasure(ctx)
		if w.Aborted {
			return latest, w.LastTemperature, ctx.Err() == nil
		}
		if !w.HasValue() {
			break
		}
		latest = w
		lastTemp = w.LastTemperature
		r.c.observer.OnEvent(Event{Kind: EventMeasured, Setting: r.setting, Window: w, Coef: w.Coefficient()})

		conf = r.c.confirmer.Confirm(ctx, p.ConfirmAttempts, r.setting, r.best, p.HashrateTolerance)
		if conf.NoValue() {
			break
		}
	}

	return latest, lastTemp, false
}

// applyAndMeasure applies the current setting, waits for it to settle and
// runs a full measurement window
func (r *sweep) applyAndMeasure(ctx context.Context) WindowResult {
	c := r.c
	s := r.setting

	if err := c.device.ApplySetting(ctx, s); err != nil {
		// The sweep proceeds as if the setting had been applied.
		c.observer.OnEvent(Event{Kind: EventSettingFailed, Setting: s, Err: err})
	} else {
		c.observer.OnEvent(Event{Kind: EventSettingApplied, Setting: s})
		if c.params.VerifySetting {
			r.verify(ctx)
		}
	}

	c.observer.OnEvent(Event{Kind: EventSettling, Setting: s, Duration: c.params.SettleTime})
	if err := c.clock.Sleep(ctx, c.params.SettleTime); err != nil {
		return WindowResult{Aborted: true}
	}

	return c.window.Measure(ctx, c.params.MeasureDuration, c.params.MeasureInterval)
}

func (r *sweep) verify(ctx context.Context) {
	reader, ok := r.c.device.(SettingReader)
	if !ok {
		return
	}
	got, err := reader.CurrentSetting(ctx)
	if err != nil {
		r.c.observer.OnEvent(Event{Kind: EventSettingMismatch, Setting: r.setting, Err: err})
		return
	}
	if got != r.setting {
		r.c.observer.OnEvent(Event{
			Kind:    EventSettingMismatch,
			Setting: r.setting,
			Err:     fmt.Errorf("device reports %s", got),
		})
	}
}

func (r *sweep) record(w WindowResult) {
	r.log.Append(NewRecord(r.setting, w))
	r.c.observer.OnEvent(Event{Kind: EventRecorded, Setting: r.setting, Window: w, Records: r.log.Len()})
}

func (r *sweep) discard(reason string) {
	r.c.observer.OnEvent(Event{Kind: EventPointDiscarded, Setting: r.setting, Reason: reason})
}
