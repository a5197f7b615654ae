package monitoring

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shizukutanaka/axetune/internal/tuning"
	"go.uber.org/zap"
)

// Namespace prefixes every sweep metric
const Namespace = "axetune"

var states = []tuning.State{
	tuning.StateBaseline,
	tuning.StateSteppingFrequency,
	tuning.StateSuspectedDrop,
	tuning.StateConfirming,
	tuning.StateEscalatingVoltage,
	tuning.StateDone,
	tuning.StateAborted,
	tuning.StateInterrupted,
}

// MetricsObserver mirrors sweep events into a Prometheus registry
type MetricsObserver struct {
	logger   *zap.Logger
	registry *prometheus.Registry
	mu       sync.Mutex

	// Device
	frequency   prometheus.Gauge
	coreVoltage prometheus.Gauge
	temperature prometheus.Gauge

	// Measurement
	hashrate     prometheus.Gauge
	stddev       prometheus.Gauge
	bestHashrate prometheus.Gauge
	records      prometheus.Gauge
	state        *prometheus.GaugeVec

	// Counters
	windows        *prometheus.CounterVec
	sampleFailures prometheus.Counter
	settingErrors  prometheus.Counter
	confirmations  prometheus.Counter
	voltageBumps   prometheus.Counter
	discarded      prometheus.Counter
}

// NewMetricsObserver creates an observer with its own registry. A non-empty
// runID is attached to every series as the run_id label.
func NewMetricsObserver(logger *zap.Logger, runID string) *MetricsObserver {
	if logger == nil {
		logger = zap.NewNop()
	}

	labels := prometheus.Labels{}
	if runID != "" {
		labels["run_id"] = runID
	}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &MetricsObserver{
		logger:   logger,
		registry: prometheus.NewRegistry(),

		frequency:    gauge("frequency_mhz", "ASIC frequency of the setting under test"),
		coreVoltage:  gauge("core_voltage_mv", "Core voltage of the setting under test"),
		temperature:  gauge("temperature_celsius", "Last reported ASIC temperature"),
		hashrate:     gauge("hashrate_ghs", "Mean hashrate of the last measurement window"),
		stddev:       gauge("hashrate_stddev_ghs", "Sample standard deviation of the last measurement window"),
		bestHashrate: gauge("best_hashrate_ghs", "Best stable hashrate seen during the sweep"),
		records:      gauge("records", "Entries in the result log"),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Name:        "state",
			Help:        "Current sweep state (1 for the active state)",
			ConstLabels: labels,
		}, []string{"state"}),

		windows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   Namespace,
			Name:        "windows_total",
			Help:        "Measurement windows by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		sampleFailures: counter("sample_failures_total", "Device reads that failed and counted as zero hashrate"),
		settingErrors:  counter("setting_errors_total", "Setting changes the device rejected"),
		confirmations:  counter("confirmations_total", "Confirmation windows run"),
		voltageBumps:   counter("voltage_bumps_total", "Core voltage increases"),
		discarded:      counter("discarded_points_total", "Frequency points skipped without a record"),
	}

	m.registry.MustRegister(
		m.frequency,
		m.coreVoltage,
		m.temperature,
		m.hashrate,
		m.stddev,
		m.bestHashrate,
		m.records,
		m.state,
		m.windows,
		m.sampleFailures,
		m.settingErrors,
		m.confirmations,
		m.voltageBumps,
		m.discarded,
	)

	for _, s := range states {
		m.state.WithLabelValues(s.String()).Set(0)
	}
	m.windows.WithLabelValues("complete")
	m.windows.WithLabelValues("thermal_abort")

	return m
}

// Registry returns the registry backing the observer
func (m *MetricsObserver) Registry() *prometheus.Registry {
	return m.registry
}

// OnEvent implements tuning.Observer
func (m *MetricsObserver) OnEvent(ev tuning.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case tuning.EventSweepStarted:
		m.setState(tuning.StateBaseline)
	case tuning.EventStateChanged, tuning.EventSweepFinished:
		m.setState(ev.State)
	case tuning.EventSettingApplied, tuning.EventVoltageBumped:
		m.setSetting(ev.Setting)
		if ev.Kind == tuning.EventVoltageBumped {
			m.voltageBumps.Inc()
		}
	case tuning.EventSettingFailed:
		m.settingErrors.Inc()
	case tuning.EventSampleProgress:
		m.temperature.Set(ev.Reading.Temperature)
	case tuning.EventSampleFailed:
		m.sampleFailures.Inc()
	case tuning.EventThermalAbort:
		m.temperature.Set(ev.Reading.Temperature)
		m.windows.WithLabelValues("thermal_abort").Inc()
	case tuning.EventMeasured:
		m.hashrate.Set(ev.Window.Mean)
		m.stddev.Set(ev.Window.StdDev)
		m.temperature.Set(ev.Window.LastTemperature)
		m.windows.WithLabelValues("complete").Inc()
	case tuning.EventConfirmResult:
		m.confirmations.Inc()
	case tuning.EventNewBest:
		m.bestHashrate.Set(ev.Best)
	case tuning.EventRecorded:
		m.records.Set(float64(ev.Records))
	case tuning.EventPointDiscarded:
		m.discarded.Inc()
	}
}

func (m *MetricsObserver) setState(s tuning.State) {
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}

func (m *MetricsObserver) setSetting(s tuning.Setting) {
	m.frequency.Set(float64(s.Frequency))
	m.coreVoltage.Set(float64(s.CoreVoltage))
}

// WriteTextfile writes the current metrics in the text exposition format for
// node_exporter's textfile collector
func (m *MetricsObserver) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}

	m.logger.Info("Metrics written", zap.String("path", path))
	return nil
}

var _ tuning.Observer = (*MetricsObserver)(nil)
