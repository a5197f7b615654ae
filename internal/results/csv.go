package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shizukutanaka/axetune/internal/tuning"
	"go.uber.org/zap"
)

// Header is the column layout of the result log
var Header = []string{"frequency", "coreVoltage", "hashrate", "temperature", "stdev"}

var (
	// ErrBadHeader is returned when a CSV does not start with Header
	ErrBadHeader = errors.New("unexpected result log header")
)

// CSVSink writes the sweep result log to a CSV file in one pass
type CSVSink struct {
	logger *zap.Logger
	path   string
}

// NewCSVSink creates a sink writing to path
func NewCSVSink(logger *zap.Logger, path string) *CSVSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSink{
		logger: logger,
		path:   path,
	}
}

// Path returns the output file
func (s *CSVSink) Path() string {
	return s.path
}

// Write replaces the output file with records, writing a temp file in the
// same directory and renaming it into place
func (s *CSVSink) Write(records []tuning.TuningRecord) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to move results into place: %w", err)
	}

	s.logger.Debug("Result log written",
		zap.String("path", s.path),
		zap.Int("records", len(records)),
	)
	return nil
}

// Encode writes the header and one row per record
func Encode(w io.Writer, records []tuning.TuningRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.Frequency),
			strconv.Itoa(r.CoreVoltage),
			formatFloat(r.Hashrate),
			formatFloat(r.Temperature),
			formatFloat(r.StdDev),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFile loads a result log written by CSVSink
func ReadFile(path string) ([]tuning.TuningRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Decode parses a result log. Integer columns written as floats
// ("600.0") are accepted.
func Decode(r io.Reader) ([]tuning.TuningRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, ErrBadHeader
	}
	if err != nil {
		return nil, err
	}
	for i, col := range Header {
		if strings.TrimSpace(head[i]) != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i+1, head[i], col)
		}
	}

	var records []tuning.TuningRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		line, _ := cr.FieldPos(0)
		vals := make([]float64, len(row))
		for i, field := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, Header[i], err)
			}
			vals[i] = v
		}

		records = append(records, tuning.TuningRecord{
			Setting: tuning.Setting{
				Frequency:   int(vals[0]),
				CoreVoltage: int(vals[1]),
			},
			Hashrate:    vals[2],
			Temperature: vals[3],
			StdDev:      vals[4],
		})
	}
	return records, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ tuning.ResultSink = (*CSVSink)(nil)
