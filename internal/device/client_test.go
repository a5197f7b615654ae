package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/shizukutanaka/axetune/internal/device"
	"github.com/shizukutanaka/axetune/internal/device/devicetest"
	"github.com/shizukutanaka/axetune/internal/tuning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newClient(t *testing.T, miner *devicetest.Miner, mutate ...func(*device.Config)) *device.Client {
	t.Helper()
	cfg := device.Config{
		Address:           miner.URL(),
		Timeout:           2 * time.Second,
		AutoFanSpeed:      true,
		FlipScreen:        true,
		InvertFanPolarity: true,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := device.NewClient(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	return c
}

func TestBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "192.168.1.42", want: "http://192.168.1.42"},
		{in: " bitaxe.local:8080 ", want: "http://bitaxe.local:8080"},
		{in: "https://miner.example/", want: "https://miner.example"},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := device.BaseURL(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, device.ErrNoAddress)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestClientApplySetting(t *testing.T) {
	t.Parallel()

	miner := devicetest.NewMiner(device.SystemInfo{Frequency: 525, CoreVoltage: 1150})
	defer miner.Close()
	c := newClient(t, miner)

	err := c.ApplySetting(context.Background(), tuning.Setting{Frequency: 600, CoreVoltage: 1200})
	require.NoError(t, err)

	patches := miner.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, devicetest.Patch{
		Frequency:         600,
		CoreVoltage:       1200,
		AutoFanSpeed:      true,
		FlipScreen:        true,
		InvertFanPolarity: true,
	}, patches[0])

	s, err := c.CurrentSetting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tuning.Setting{Frequency: 600, CoreVoltage: 1200}, s)
}

func TestClientApplySettingFailure(t *testing.T) {
	t.Parallel()

	miner := devicetest.NewMiner(device.SystemInfo{})
	defer miner.Close()
	miner.FailPatch(1)
	c := newClient(t, miner)

	err := c.ApplySetting(context.Background(), tuning.Setting{Frequency: 600, CoreVoltage: 1200})
	require.Error(t, err)

	var statusErr *device.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.Code)
	assert.Equal(t, "internal error", statusErr.Body)
	assert.Empty(t, miner.Patches())
}

func TestClientSample(t *testing.T) {
	t.Parallel()

	miner := devicetest.NewMiner(device.SystemInfo{
		HashRate:  1012.7,
		Temp:      54.25,
		Hostname:  "bitaxe",
		ASICModel: "BM1370",
	})
	defer miner.Close()
	c := newClient(t, miner)

	r, err := c.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tuning.Reading{Hashrate: 1012.7, Temperature: 54.25}, r)

	info, err := c.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bitaxe", info.Hostname)
	assert.Equal(t, "BM1370", info.ASICModel)
}

func TestClientSampleFailure(t *testing.T) {
	t.Parallel()

	miner := devicetest.NewMiner(device.SystemInfo{HashRate: 500, Temp: 50})
	defer miner.Close()
	miner.FailInfo(1)
	c := newClient(t, miner)

	_, err := c.Sample(context.Background())
	var statusErr *device.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 503, statusErr.Code)

	r, err := c.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500.0, r.Hashrate)
}

func TestClientUnreachable(t *testing.T) {
	t.Parallel()

	miner := devicetest.NewMiner(device.SystemInfo{})
	url := miner.URL()
	miner.Close()

	c, err := device.NewClient(zaptest.NewLogger(t), device.Config{Address: url, Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Sample(context.Background())
	assert.Error(t, err)
}

func TestClientRespectsContext(t *testing.T) {
	t.Parallel()

	miner := devicetest.NewMiner(device.SystemInfo{})
	defer miner.Close()
	c := newClient(t, miner, func(cfg *device.Config) { cfg.RequestsPerSecond = 0.001 })

	// the first request consumes the only token
	_, err := c.Sample(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Sample(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, miner.InfoHits())
}

func TestNewClientRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := device.NewClient(nil, device.Config{})
	assert.ErrorIs(t, err, device.ErrNoAddress)
}

func TestClientDrivesSweep(t *testing.T) {
	t.Parallel()

	miner := devicetest.NewMiner(device.SystemInfo{})
	defer miner.Close()
	miner.SetModel(func(freq, cv int) (float64, float64) {
		return float64(freq), 45
	})
	c := newClient(t, miner)

	p := tuning.DefaultParams()
	p.Frequency = tuning.Ladder{Start: 500, End: 510, Step: 5}
	p.SettleTime = 0
	p.MeasureDuration = 3 * time.Millisecond
	p.MeasureInterval = time.Millisecond
	p.ConfirmDuration = 2 * time.Millisecond
	p.ConfirmInterval = time.Millisecond

	var written []tuning.TuningRecord
	sink := sinkFunc(func(records []tuning.TuningRecord) error {
		written = records
		return nil
	})

	ctrl, err := tuning.NewController(zaptest.NewLogger(t), p, c, sink)
	require.NoError(t, err)

	out, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tuning.StateDone, out.State)
	require.Len(t, written, 3)
	assert.Equal(t, 510.0, written[2].Hashrate)
	assert.Len(t, miner.Patches(), 3)
}

type sinkFunc func([]tuning.TuningRecord) error

func (f sinkFunc) Write(records []tuning.TuningRecord) error {
	return f(records)
}
