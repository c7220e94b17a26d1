package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuffer(t *testing.T) {
	t.Run("rejects non-positive sample rate", func(t *testing.T) {
		for _, rate := range []int{0, -44100} {
			_, err := NewBuffer([]int16{1, 2}, rate)
			assert.ErrorIs(t, err, ErrInvalidSampleRate)
		}
	})

	t.Run("accepts empty samples", func(t *testing.T) {
		b, err := NewBuffer(nil, 16000)
		require.NoError(t, err)
		assert.Equal(t, 0, b.Len())
		assert.Equal(t, time.Duration(0), b.Duration())
	})
}

func TestBuffer_Duration(t *testing.T) {
	b := Buffer{Samples: make([]int16, 22050), SampleRate: 44100}
	assert.Equal(t, 500*time.Millisecond, b.Duration())
}

func TestBuffer_SliceCopies(t *testing.T) {
	b := Buffer{Samples: []int16{1, 2, 3, 4, 5}, SampleRate: 8000}

	s, err := b.Slice(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []int16{2, 3, 4}, s.Samples)
	assert.Equal(t, 8000, s.SampleRate)

	s.Samples[0] = 99
	assert.Equal(t, int16(2), b.Samples[1])
}

func TestBuffer_SliceOutOfRange(t *testing.T) {
	b := Buffer{Samples: []int16{1, 2, 3}, SampleRate: 8000}
	for _, r := range [][2]int{{-1, 2}, {0, 4}, {2, 1}} {
		_, err := b.Slice(r[0], r[1])
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Slice(%d, %d) error = %v, want ErrOutOfRange", r[0], r[1], err)
		}
	}
}

func TestBuffer_Clone(t *testing.T) {
	b := Buffer{Samples: []int16{7, 8}, SampleRate: 8000}
	c := b.Clone()
	c.Samples[0] = 0
	assert.Equal(t, int16(7), b.Samples[0])
}

func TestDurationConversions(t *testing.T) {
	tests := []struct {
		d    time.Duration
		rate int
		want int
	}{
		{10 * time.Millisecond, 44100, 441},
		{60 * time.Millisecond, 44100, 2646},
		{time.Second, 16000, 16000},
		{time.Microsecond, 44100, 0},
		{-time.Millisecond, 44100, -43},
	}
	for _, tt := range tests {
		if got := DurationToSamples(tt.d, tt.rate); got != tt.want {
			t.Errorf("DurationToSamples(%v, %d) = %d, want %d", tt.d, tt.rate, got, tt.want)
		}
	}

	assert.Equal(t, 10*time.Millisecond, SamplesToDuration(441, 44100))
	assert.Equal(t, time.Duration(0), SamplesToDuration(441, 0))
}
