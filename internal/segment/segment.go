// Package segment splits a recorded word into voiced regions using loudness
// thresholds. It finds non-silent spans in a mono PCM buffer, merges spans
// separated by short gaps, trims residual silence from their edges and
// returns a tightly cropped whole-word clip plus numbered letter clips.
//
// Every function in this package is pure: inputs are read, never modified,
// and results are fresh values. Calls may run concurrently on distinct or
// shared buffers without locking.
package segment

import (
	"errors"
	"fmt"
	"time"

	"github.com/maauso/palabra/internal/audio"
)

// ErrInvalidInput is returned when a caller passes a non-positive sample
// rate or a non-positive window, gap or margin. Values are never clamped.
var ErrInvalidInput = errors.New("segment: invalid input")

// Interval is a half-open range [Start, End) of sample indices.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of samples covered by the interval.
func (iv Interval) Len() int {
	return iv.End - iv.Start
}

// Duration returns the playing time of the interval at sampleRate.
func (iv Interval) Duration(sampleRate int) time.Duration {
	return audio.SamplesToDuration(iv.Len(), sampleRate)
}

// String formats the interval as [start, end).
func (iv Interval) String() string {
	return fmt.Sprintf("[%d, %d)", iv.Start, iv.End)
}

// Segment is a trimmed interval together with a copy of the samples it
// denotes. Index is 0 for the whole-utterance clip and 1..n for letters.
type Segment struct {
	Index    int
	Interval Interval
	Audio    audio.Buffer
}

// Result is the output of a segmentation pass.
type Result struct {
	// LoudnessDB is the overall loudness of the input buffer.
	LoudnessDB float64
	// ThresholdDB is the cutoff used for detection and trimming.
	ThresholdDB float64
	// Whole is the entire utterance with leading and trailing silence trimmed.
	Whole Segment
	// Letters are the accepted sub-clips in start order, numbered from 1.
	Letters []Segment
	// Candidates is the number of merged intervals before the duration filter.
	Candidates int
	// Discarded is the number of candidates dropped as shorter than the
	// minimum segment duration.
	Discarded int
}

// Params holds the tunables of the segmentation pipeline.
type Params struct {
	// Window is the detection window length.
	Window time.Duration
	// MinSilence is the shortest run of silent windows that ends a
	// non-silent interval during detection.
	MinSilence time.Duration
	// OffsetDB is how far below the buffer's own loudness the silence
	// threshold sits.
	OffsetDB float64
	// MergeGap joins consecutive intervals whose gap is shorter than this.
	MergeGap time.Duration
	// Margin is kept around the first and last loud samples when trimming.
	Margin time.Duration
	// MinSegment drops letter clips shorter than this after trimming.
	MinSegment time.Duration
}

// DefaultParams returns the tunables used for single spoken words.
func DefaultParams() Params {
	return Params{
		Window:     60 * time.Millisecond,
		MinSilence: 60 * time.Millisecond,
		OffsetDB:   20,
		MergeGap:   150 * time.Millisecond,
		Margin:     10 * time.Millisecond,
		MinSegment: 80 * time.Millisecond,
	}
}

// samples holds Params converted to sample counts for one sample rate.
type samples struct {
	window     int
	minSilence int
	mergeGap   int
	margin     int
	minSegment int
}

// toSamples validates p against sampleRate and converts every duration.
func (p Params) toSamples(sampleRate int) (samples, error) {
	if sampleRate <= 0 {
		return samples{}, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidInput, sampleRate)
	}
	if p.MinSegment < 0 {
		return samples{}, fmt.Errorf("%w: minimum segment must not be negative, got %s", ErrInvalidInput, p.MinSegment)
	}

	s := samples{
		window:     audio.DurationToSamples(p.Window, sampleRate),
		minSilence: audio.DurationToSamples(p.MinSilence, sampleRate),
		mergeGap:   audio.DurationToSamples(p.MergeGap, sampleRate),
		margin:     audio.DurationToSamples(p.Margin, sampleRate),
		minSegment: audio.DurationToSamples(p.MinSegment, sampleRate),
	}

	for _, c := range []struct {
		name string
		d    time.Duration
		n    int
	}{
		{"window", p.Window, s.window},
		{"minimum silence", p.MinSilence, s.minSilence},
		{"merge gap", p.MergeGap, s.mergeGap},
		{"margin", p.Margin, s.margin},
	} {
		if c.n <= 0 {
			return samples{}, fmt.Errorf("%w: %s must span at least one sample, got %s at %d Hz",
				ErrInvalidInput, c.name, c.d, sampleRate)
		}
	}
	return s, nil
}

// Validate reports whether p can be applied at sampleRate.
func (p Params) Validate(sampleRate int) error {
	_, err := p.toSamples(sampleRate)
	return err
}
