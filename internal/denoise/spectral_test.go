package denoise

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/palabra/internal/audio"
)

const rate = 16000

func rms(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// noisyWord is one second of white noise with a loud tone in the middle.
func noisyWord() audio.Buffer {
	rng := rand.New(rand.NewPCG(1, 2))
	samples := make([]int16, rate)
	for i := range samples {
		v := rng.NormFloat64() * 300
		if i >= rate*4/10 && i < rate*6/10 {
			v += 10000 * math.Sin(2*math.Pi*500*float64(i)/rate)
		}
		samples[i] = int16(v)
	}
	return audio.Buffer{Samples: samples, SampleRate: rate}
}

func TestSpectralGate_ReducesBackgroundKeepsSignal(t *testing.T) {
	gate, err := NewSpectralGate(DefaultGateOpts())
	require.NoError(t, err)

	in := noisyWord()
	out, err := gate.Reduce(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, in.Len(), out.Len())
	assert.Equal(t, in.SampleRate, out.SampleRate)

	lead := func(b audio.Buffer) []int16 { return b.Samples[rate/10 : rate*3/10] }
	middle := func(b audio.Buffer) []int16 { return b.Samples[rate*45/100 : rate*55/100] }

	assert.Less(t, rms(lead(out)), 0.65*rms(lead(in)), "background should drop")
	assert.InDelta(t, 1.0, rms(middle(out))/rms(middle(in)), 0.2, "tone should survive")
}

func TestSpectralGate_DoesNotModifyInput(t *testing.T) {
	gate, err := NewSpectralGate(DefaultGateOpts())
	require.NoError(t, err)

	in := noisyWord()
	before := in.Clone()
	_, err = gate.Reduce(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, before, in)
}

func TestSpectralGate_ShortAndEmptyBuffers(t *testing.T) {
	gate, err := NewSpectralGate(DefaultGateOpts())
	require.NoError(t, err)

	out, err := gate.Reduce(context.Background(), audio.Buffer{SampleRate: rate})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())

	out, err = gate.Reduce(context.Background(), audio.Buffer{Samples: make([]int16, 100), SampleRate: rate})
	require.NoError(t, err)
	assert.Equal(t, 100, out.Len())
}

func TestSpectralGate_ContextCancelled(t *testing.T) {
	gate, err := NewSpectralGate(DefaultGateOpts())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gate.Reduce(ctx, noisyWord())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSpectralGate_InvalidOpts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GateOpts)
	}{
		{"frame size", func(o *GateOpts) { o.FrameSize = 1 }},
		{"zero hop", func(o *GateOpts) { o.HopSize = 0 }},
		{"hop above frame", func(o *GateOpts) { o.HopSize = o.FrameSize + 1 }},
		{"noise fraction", func(o *GateOpts) { o.NoiseFraction = 0 }},
		{"threshold factor", func(o *GateOpts) { o.ThresholdFactor = -1 }},
		{"attenuation", func(o *GateOpts) { o.Attenuation = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultGateOpts()
			tt.mutate(&opts)
			_, err := NewSpectralGate(opts)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestPassthrough(t *testing.T) {
	in := audio.Buffer{Samples: []int16{1, 2, 3}, SampleRate: rate}
	out, err := Passthrough{}.Reduce(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out.Samples[0] = 9
	assert.Equal(t, int16(1), in.Samples[0])
}
