package results

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shizukutanaka/axetune/internal/tuning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func sampleRecords() []tuning.TuningRecord {
	return []tuning.TuningRecord{
		{Setting: tuning.Setting{Frequency: 525, CoreVoltage: 1150}, Hashrate: 1012.5, Temperature: 51.25, StdDev: 14.2},
		{Setting: tuning.Setting{Frequency: 530, CoreVoltage: 1150}, Hashrate: 1020, Temperature: 52, StdDev: 9.75},
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleRecords()))

	want := "frequency,coreVoltage,hashrate,temperature,stdev\n" +
		"525,1150,1012.5,51.25,14.2\n" +
		"530,1150,1020,52,9.75\n"
	assert.Equal(t, want, buf.String())
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))
	assert.Equal(t, "frequency,coreVoltage,hashrate,temperature,stdev\n", buf.String())
}

func TestCSVSinkWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "results.csv")
	sink := NewCSVSink(zaptest.NewLogger(t), path)
	assert.Equal(t, path, sink.Path())

	require.NoError(t, sink.Write(sampleRecords()))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)

	// a second write replaces the log
	require.NoError(t, sink.Write(sampleRecords()[:1]))
	got, err = ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCSVSinkWriteFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	sink := NewCSVSink(nil, filepath.Join(blocker, "results.csv"))
	assert.Error(t, sink.Write(sampleRecords()))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    []tuning.TuningRecord
		wantErr bool
	}{
		{
			name:  "float integer columns",
			input: "frequency,coreVoltage,hashrate,temperature,stdev\n600.0,1200.0,1100.5,55.0,8.1\n",
			want: []tuning.TuningRecord{
				{Setting: tuning.Setting{Frequency: 600, CoreVoltage: 1200}, Hashrate: 1100.5, Temperature: 55, StdDev: 8.1},
			},
		},
		{
			name:  "header only",
			input: "frequency,coreVoltage,hashrate,temperature,stdev\n",
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "wrong header",
			input:   "freq,cv,hr,t,s\n1,2,3,4,5\n",
			wantErr: true,
		},
		{
			name:    "short row",
			input:   "frequency,coreVoltage,hashrate,temperature,stdev\n600,1200,1100\n",
			wantErr: true,
		},
		{
			name:    "not a number",
			input:   "frequency,coreVoltage,hashrate,temperature,stdev\n600,1200,fast,55,8\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
