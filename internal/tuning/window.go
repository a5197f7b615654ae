package tuning

import (
	"context"
	"time"

	"gonum.org/v1/gonum/stat"
)

// progressEvery is how often a window narrates sampling progress
const progressEvery = 30

// Window is the fixed-duration, fixed-interval measurement primitive
type Window struct {
	sampler   Sampler
	clock     Clock
	observer  Observer
	tempLimit float64
}

// NewWindow creates a measurement window bound to a sampler
func NewWindow(sampler Sampler, clock Clock, observer Observer, tempLimit float64) *Window {
	if clock == nil {
		clock = RealClock{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Window{
		sampler:   sampler,
		clock:     clock,
		observer:  observer,
		tempLimit: tempLimit,
	}
}

// Measure samples duration/interval ticks, waiting interval before each one.
//
// A failed sample counts as zero hashrate and repeats the previous temperature,
// so a transport error is never mistaken for a thermal event. The first tick's
// previous temperature is zero. A temperature at or above the limit returns an
// aborted result immediately without averaging the partial window.
//
// Cancelling ctx also stops the window early; the result is then marked aborted.
func (w *Window) Measure(ctx context.Context, duration, interval time.Duration) WindowResult {
	steps := 0
	if interval > 0 {
		steps = int(duration / interval)
	}

	w.observer.OnEvent(Event{Kind: EventWindowStarted, Duration: duration, Ticks: steps})

	samples := make([]float64, 0, steps)
	var lastTemp float64

	for i := 0; i < steps; i++ {
		if err := w.clock.Sleep(ctx, interval); err != nil {
			return WindowResult{Aborted: true, LastTemperature: lastTemp, Samples: len(samples)}
		}

		reading, err := w.sampler.Sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return WindowResult{Aborted: true, LastTemperature: lastTemp, Samples: len(samples)}
			}
			w.observer.OnEvent(Event{
				Kind: EventSampleFailed,
				Tick: i + 1,
				Err:  &SampleError{Tick: i + 1, Err: err},
			})
			reading = Reading{Hashrate: 0, Temperature: lastTemp}
		}

		samples = append(samples, reading.Hashrate)
		lastTemp = reading.Temperature

		if (i+1)%progressEvery == 0 || i == steps-1 {
			w.observer.OnEvent(Event{Kind: EventSampleProgress, Tick: i + 1, Ticks: steps, Reading: reading})
		}

		if reading.Temperature >= w.tempLimit {
			w.observer.OnEvent(Event{Kind: EventThermalAbort, Tick: i + 1, Ticks: steps, Reading: reading})
			return WindowResult{Aborted: true, LastTemperature: lastTemp, Samples: len(samples)}
		}
	}

	if len(samples) == 0 {
		return WindowResult{LastTemperature: lastTemp}
	}

	mean, stdev := Summarize(samples)
	return WindowResult{
		Mean:            mean,
		StdDev:          stdev,
		LastTemperature: lastTemp,
		Samples:         len(samples),
	}
}

// Summarize returns the mean and the sample standard deviation (n-1) of xs.
// The deviation is zero for fewer than two values.
func Summarize(xs []float64) (mean, stdev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean = stat.Mean(xs, nil)
	if len(xs) < 2 {
		return mean, 0
	}
	return mean, stat.StdDev(xs, nil)
}
