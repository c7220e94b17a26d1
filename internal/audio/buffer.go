package audio

import (
	"errors"
	"fmt"
	"time"
)

// Static errors for buffer construction.
var (
	// ErrInvalidSampleRate is returned when a buffer is built with a
	// non-positive sample rate.
	ErrInvalidSampleRate = errors.New("audio: sample rate must be positive")
	// ErrOutOfRange is returned when a slice falls outside the buffer.
	ErrOutOfRange = errors.New("audio: range out of bounds")
)

// Buffer is a single-channel sequence of signed 16-bit PCM samples.
// A Buffer is treated as immutable once captured: every operation that
// derives audio from it returns a new Buffer with its own backing array.
type Buffer struct {
	// Samples holds the PCM data, one value per frame.
	Samples []int16
	// SampleRate is the number of samples per second.
	SampleRate int
}

// NewBuffer validates the sample rate and wraps samples in a Buffer.
// The slice is not copied; callers hand over ownership.
func NewBuffer(samples []int16, sampleRate int) (Buffer, error) {
	if sampleRate <= 0 {
		return Buffer{}, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}
	return Buffer{Samples: samples, SampleRate: sampleRate}, nil
}

// Len returns the number of samples.
func (b Buffer) Len() int {
	return len(b.Samples)
}

// Duration returns the playing time of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return SamplesToDuration(len(b.Samples), b.SampleRate)
}

// Slice returns a copy of the samples in [start, end).
func (b Buffer) Slice(start, end int) (Buffer, error) {
	if start < 0 || end > len(b.Samples) || start > end {
		return Buffer{}, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfRange, start, end, len(b.Samples))
	}
	out := make([]int16, end-start)
	copy(out, b.Samples[start:end])
	return Buffer{Samples: out, SampleRate: b.SampleRate}, nil
}

// Clone returns a deep copy of the buffer.
func (b Buffer) Clone() Buffer {
	out := make([]int16, len(b.Samples))
	copy(out, b.Samples)
	return Buffer{Samples: out, SampleRate: b.SampleRate}
}

// DurationToSamples converts d to a sample count at sampleRate, rounding
// to the nearest sample.
func DurationToSamples(d time.Duration, sampleRate int) int {
	return int((d.Nanoseconds()*int64(sampleRate) + int64(time.Second)/2) / int64(time.Second))
}

// SamplesToDuration converts a sample count at sampleRate to a duration.
func SamplesToDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}
