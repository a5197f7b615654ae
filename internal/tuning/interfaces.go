package tuning

import "context"

// Sampler performs one read of device throughput and temperature.
// A non-nil error is a transport failure; it is never retried here.
type Sampler interface {
	Sample(ctx context.Context) (Reading, error)
}

// Actuator applies a setting to the device
type Actuator interface {
	ApplySetting(ctx context.Context, s Setting) error
}

// SettingReader is implemented by actuators that can read back the active setting
type SettingReader interface {
	CurrentSetting(ctx context.Context) (Setting, error)
}

// Device combines the read and write sides of a tunable miner
type Device interface {
	Sampler
	Actuator
}

// ResultSink persists the record log of a finished sweep in one write
type ResultSink interface {
	Write(records []TuningRecord) error
}
