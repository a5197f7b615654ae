package tuning

import (
	"context"
	"time"
)

// ConfirmResult is the verdict of a confirmation run
type ConfirmResult struct {
	Mean     float64
	Coef     float64
	Aborted  bool
	Attempts int
	// Exhausted is set when every attempt ran without an early return.
	// It is informational; callers compare Mean against the tolerance themselves.
	Exhausted bool
}

// NoValue reports whether the confirmation produced no measurement.
// Zero attempts, an empty window and a thermal abort all count.
func (r ConfirmResult) NoValue() bool {
	return r.Aborted || r.Attempts == 0
}

// Confirmer re-measures a suspected drop with short windows
type Confirmer struct {
	window    *Window
	observer  Observer
	duration  time.Duration
	interval  time.Duration
	threshold float64
}

// NewConfirmer creates a confirmer reusing window for its measurements
func NewConfirmer(window *Window, observer Observer, p Params) *Confirmer {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Confirmer{
		window:    window,
		observer:  observer,
		duration:  p.ConfirmDuration,
		interval:  p.ConfirmInterval,
		threshold: p.CoefficientCeiling,
	}
}

// Confirm runs up to attempts short windows at setting. It returns as soon as
// a window is noisy (coefficient above the threshold) or recovered
// (mean >= best*tolerance); otherwise the last attempt is returned as-is.
// A thermal abort is returned immediately.
func (c *Confirmer) Confirm(ctx context.Context, attempts int, setting Setting, best, tolerance float64) ConfirmResult {
	var res ConfirmResult

	for attempt := 1; attempt <= attempts; attempt++ {
		c.observer.OnEvent(Event{
			Kind:     EventConfirmAttempt,
			Setting:  setting,
			Attempt:  attempt,
			Attempts: attempts,
		})

		w := c.window.Measure(ctx, c.duration, c.interval)
		if w.Aborted {
			return ConfirmResult{Aborted: true, Attempts: attempt}
		}
		if w.Samples == 0 {
			return ConfirmResult{}
		}

		coef := w.Coefficient()
		res = ConfirmResult{Mean: w.Mean, Coef: coef, Attempts: attempt}

		c.observer.OnEvent(Event{
			Kind:    EventConfirmResult,
			Setting: setting,
			Window:  w,
			Coef:    coef,
			Attempt: attempt,
		})

		if coef > c.threshold || w.Mean >= best*tolerance {
			return res
		}
	}

	res.Exhausted = res.Attempts > 0
	return res
}
