package tuning

import (
	"errors"
	"fmt"
)

var (
	// ErrBaselineFailed is returned when no usable baseline measurement was taken
	ErrBaselineFailed = errors.New("baseline measurement failed")
	// ErrInvalidParams is returned when sweep parameters are inconsistent
	ErrInvalidParams = errors.New("invalid sweep parameters")
)

// SampleError wraps a failed device read
type SampleError struct {
	Tick int
	Err  error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %d failed: %v", e.Tick, e.Err)
}

func (e *SampleError) Unwrap() error {
	return e.Err
}
