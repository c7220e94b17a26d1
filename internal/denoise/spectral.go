package denoise

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/maauso/palabra/internal/audio"
)

// GateOpts configures the spectral gate.
type GateOpts struct {
	// FrameSize is the STFT frame length in samples.
	// Default: 2048.
	FrameSize int

	// HopSize is the distance between frame starts in samples.
	// Default: 512.
	HopSize int

	// NoiseFraction is the share of quietest frames used to estimate the
	// noise spectrum.
	// Default: 0.1.
	NoiseFraction float64

	// ThresholdFactor multiplies the noise magnitude of each bin; bins at or
	// below the product are attenuated.
	// Default: 2.0.
	ThresholdFactor float64

	// Attenuation is the gain applied to gated bins, 0 removes them fully.
	// Default: 0.
	Attenuation float64
}

// DefaultGateOpts returns the default spectral gate options.
func DefaultGateOpts() GateOpts {
	return GateOpts{
		FrameSize:       2048,
		HopSize:         512,
		NoiseFraction:   0.1,
		ThresholdFactor: 2.0,
	}
}

// SpectralGate estimates a per-frequency noise floor from the quietest
// frames of a recording and suppresses every time-frequency bin that does
// not rise clearly above it. Recordings need some leading or trailing
// background for the estimate to be meaningful.
type SpectralGate struct {
	opts   GateOpts
	window []float64
}

// NewSpectralGate validates opts and builds a gate.
func NewSpectralGate(opts GateOpts) (*SpectralGate, error) {
	switch {
	case opts.FrameSize < 2:
		return nil, fmt.Errorf("%w: frame size %d", ErrInvalidConfig, opts.FrameSize)
	case opts.HopSize <= 0 || opts.HopSize > opts.FrameSize:
		return nil, fmt.Errorf("%w: hop size %d for frame size %d", ErrInvalidConfig, opts.HopSize, opts.FrameSize)
	case opts.NoiseFraction <= 0 || opts.NoiseFraction > 1:
		return nil, fmt.Errorf("%w: noise fraction %v", ErrInvalidConfig, opts.NoiseFraction)
	case opts.ThresholdFactor < 0:
		return nil, fmt.Errorf("%w: threshold factor %v", ErrInvalidConfig, opts.ThresholdFactor)
	case opts.Attenuation < 0 || opts.Attenuation > 1:
		return nil, fmt.Errorf("%w: attenuation %v", ErrInvalidConfig, opts.Attenuation)
	}

	// Periodic Hann window.
	window := make([]float64, opts.FrameSize)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(opts.FrameSize))
	}
	return &SpectralGate{opts: opts, window: window}, nil
}

// Reduce implements Reducer.
func (g *SpectralGate) Reduce(ctx context.Context, b audio.Buffer) (audio.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, err
	}
	if b.Len() == 0 {
		return b.Clone(), nil
	}

	frame, hop := g.opts.FrameSize, g.opts.HopSize
	n := b.Len()
	frames := 1
	if n > frame {
		frames += (n - frame + hop - 1) / hop
	}
	padded := make([]float64, (frames-1)*hop+frame)
	for i, s := range b.Samples {
		padded[i] = float64(s)
	}

	fft := fourier.NewFFT(frame)
	seq := make([]float64, frame)
	spectra := make([][]complex128, frames)
	energy := make([]float64, frames)
	for f := range spectra {
		off := f * hop
		for i := range seq {
			seq[i] = padded[off+i] * g.window[i]
		}
		spectra[f] = fft.Coefficients(nil, seq)
		for _, c := range spectra[f] {
			energy[f] += real(c)*real(c) + imag(c)*imag(c)
		}
	}

	if err := ctx.Err(); err != nil {
		return audio.Buffer{}, err
	}

	profile := g.noiseProfile(spectra, energy)
	for _, spec := range spectra {
		for k, c := range spec {
			if cmplx.Abs(c) <= g.opts.ThresholdFactor*profile[k] {
				spec[k] = c * complex(g.opts.Attenuation, 0)
			}
		}
	}

	// Weighted overlap-add with the same window on synthesis.
	acc := make([]float64, len(padded))
	norm := make([]float64, len(padded))
	for f, spec := range spectra {
		off := f * hop
		out := fft.Sequence(seq, spec)
		for i, v := range out {
			w := g.window[i]
			acc[off+i] += v / float64(frame) * w
			norm[off+i] += w * w
		}
	}

	samples := make([]int16, n)
	for i := range samples {
		if norm[i] > 1e-6 {
			samples[i] = clamp(acc[i] / norm[i])
		}
	}
	return audio.Buffer{Samples: samples, SampleRate: b.SampleRate}, nil
}

// noiseProfile averages the bin magnitudes of the quietest frames.
func (g *SpectralGate) noiseProfile(spectra [][]complex128, energy []float64) []float64 {
	order := make([]int, len(spectra))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return energy[order[a]] < energy[order[b]] })

	count := max(1, int(g.opts.NoiseFraction*float64(len(spectra))))
	profile := make([]float64, len(spectra[0]))
	for _, f := range order[:count] {
		for k, c := range spectra[f] {
			profile[k] += cmplx.Abs(c)
		}
	}
	for k := range profile {
		profile[k] /= float64(count)
	}
	return smooth(profile, profileSmoothing)
}

// profileSmoothing is the half-width, in bins, of the moving average applied
// to the noise profile. A handful of quiet frames gives a noisy estimate.
const profileSmoothing = 2

func smooth(v []float64, half int) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		lo, hi := max(0, i-half), min(len(v)-1, i+half)
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += v[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

func clamp(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}

var _ Reducer = (*SpectralGate)(nil)
