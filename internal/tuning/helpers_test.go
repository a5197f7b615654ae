package tuning

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/mock"
)

// fakeClock records waits without blocking
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.slept = append(c.slept, d)
	return nil
}

// model produces the n-th reading since the last applied setting
type model func(s Setting, n int) (Reading, error)

// fakeDevice is a scripted miner
type fakeDevice struct {
	model    model
	current  Setting
	applied  []Setting
	applyErr error
	reads    int
	total    int
}

func (d *fakeDevice) ApplySetting(_ context.Context, s Setting) error {
	d.applied = append(d.applied, s)
	if d.applyErr != nil {
		return d.applyErr
	}
	d.current = s
	d.reads = 0
	return nil
}

func (d *fakeDevice) Sample(_ context.Context) (Reading, error) {
	n := d.reads
	d.reads++
	d.total++
	return d.model(d.current, n)
}

// readbackDevice reports a fixed setting on read-back
type readbackDevice struct {
	*fakeDevice
	reported Setting
}

func (d *readbackDevice) CurrentSetting(context.Context) (Setting, error) {
	return d.reported, nil
}

// sequence replays readings in order and fails once they run out
type sequence struct {
	readings []Reading
	errs     map[int]error
	calls    int
}

func (s *sequence) Sample(context.Context) (Reading, error) {
	i := s.calls
	s.calls++
	if err, ok := s.errs[i]; ok {
		return Reading{}, err
	}
	if i >= len(s.readings) {
		return Reading{}, errors.New("sequence exhausted")
	}
	return s.readings[i], nil
}

func hashrates(temp float64, hs ...float64) []Reading {
	out := make([]Reading, len(hs))
	for i, h := range hs {
		out[i] = Reading{Hashrate: h, Temperature: temp}
	}
	return out
}

// steady alternates mean+1 and mean-1, which keeps the coefficient tiny
func steady(mean, temp float64, n int) Reading {
	if n%2 == 0 {
		return Reading{Hashrate: mean + 1, Temperature: temp}
	}
	return Reading{Hashrate: mean - 1, Temperature: temp}
}

// noisy alternates mean+spread and mean-spread
func noisy(mean, spread, temp float64, n int) Reading {
	if n%2 == 0 {
		return Reading{Hashrate: mean + spread, Temperature: temp}
	}
	return Reading{Hashrate: mean - spread, Temperature: temp}
}

// eventLog collects events for assertions
type eventLog struct {
	events []Event
}

func (l *eventLog) OnEvent(ev Event) {
	l.events = append(l.events, ev)
}

func (l *eventLog) count(kind EventKind) int {
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) of(kind EventKind) []Event {
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// mockSink is a testify mock of ResultSink
type mockSink struct {
	mock.Mock
}

func (m *mockSink) Write(records []TuningRecord) error {
	args := m.Called(records)
	return args.Error(0)
}

func testParams() Params {
	return Params{
		Frequency:          Ladder{Start: 500, End: 520, Step: 5},
		Voltage:            Ladder{Start: 1150, End: 1200, Step: 10},
		SettleTime:         time.Second,
		MeasureDuration:    4 * time.Second,
		MeasureInterval:    time.Second,
		ConfirmDuration:    2 * time.Second,
		ConfirmInterval:    time.Second,
		ConfirmAttempts:    2,
		TempLimit:          60,
		HashrateTolerance:  0.90,
		CoefficientCeiling: 0.12,
	}
}
