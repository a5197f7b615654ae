package tuning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "baseline", StateBaseline.String())
	assert.Equal(t, "escalating_voltage", StateEscalatingVoltage.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateConfirming.Terminal())
}

func TestFormatHashrate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ghs  float64
		want string
	}{
		{512.5, "512.5 GH/s"},
		{512.49, "512.49 GH/s"},
		{512.496, "512.5 GH/s"},
		{1200, "1.2 TH/s"},
		{1105.2, "1.11 TH/s"},
		{1107.9, "1.11 TH/s"},
		{999.999, "999.99 GH/s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatHashrate(tt.ghs), "%v GH/s", tt.ghs)
	}
}

func TestMultiObserver(t *testing.T) {
	t.Parallel()

	a, b := &eventLog{}, &eventLog{}
	var seen []EventKind
	m := MultiObserver{a, nil, b, ObserverFunc(func(ev Event) { seen = append(seen, ev.Kind) })}

	m.OnEvent(Event{Kind: EventNewBest})
	m.OnEvent(Event{Kind: EventRecorded})

	assert.Len(t, a.events, 2)
	assert.Len(t, b.events, 2)
	assert.Equal(t, []EventKind{EventNewBest, EventRecorded}, seen)
}

func TestLogObserverNarratesSweep(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	narrator := NewLogObserver(zap.New(core))

	p := testParams()
	device := &fakeDevice{model: func(s Setting, n int) (Reading, error) {
		if s.Frequency >= 510 && s.CoreVoltage < 1160 {
			return steady(400, 50, n), nil
		}
		return steady(float64(s.Frequency), 50, n), nil
	}}
	sink := &mockSink{}
	sink.On("Write", mock.Anything).Return(nil)

	ctrl, err := NewController(zap.NewNop(), p, device, sink, WithClock(&fakeClock{}), WithObserver(narrator))
	require.NoError(t, err)

	_, err = ctrl.Run(context.Background())
	require.NoError(t, err)

	for _, msg := range []string{
		"Starting overclock sweep",
		"Setting applied",
		"Waiting for device to settle",
		"Measuring hashrate",
		"Measurement result",
		"Suspected undervoltage, confirming",
		"Confirming drop",
		"Confirmed drop, increasing voltage",
		"Bumping voltage",
		"New best hashrate",
		"Sweep finished",
		"Results written",
	} {
		assert.NotZero(t, logs.FilterMessage(msg).Len(), "missing log %q", msg)
	}

	bumped := logs.FilterMessage("Bumping voltage").All()
	require.Len(t, bumped, 1)
	assert.Equal(t, int64(1160), bumped[0].ContextMap()["core_voltage"])

	finished := logs.FilterMessage("Sweep finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, ReasonLadderExhausted, finished[0].ContextMap()["reason"])
}

func TestLogObserverLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	narrator := NewLogObserver(zap.New(core))

	narrator.OnEvent(Event{Kind: EventSampleFailed, Tick: 3, Err: assert.AnError})
	narrator.OnEvent(Event{Kind: EventThermalAbort, Reading: Reading{Temperature: 61}})
	narrator.OnEvent(Event{Kind: EventSampleProgress, Tick: 30})
	narrator.OnEvent(Event{Kind: EventResultsFlushed, Records: 3, Err: assert.AnError})

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
