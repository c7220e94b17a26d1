package audio

import (
	"context"
	"errors"
	"fmt"
	"io"

	shine "github.com/braheezy/shine-mp3/pkg/mp3"
	gomp3 "github.com/hajimehoshi/go-mp3"
)

// ErrInvalidMP3 is returned when an MP3 stream cannot be decoded.
var ErrInvalidMP3 = errors.New("audio: invalid MP3 stream")

// shineFrame is the number of samples per channel in one MPEG-1 Layer III
// frame. The encoder consumes whole frames only.
const shineFrame = 1152

// shineRates are the MPEG-1 sample rates the built-in encoder accepts.
var shineRates = map[int]bool{32000: true, 44100: true, 48000: true}

// DecodeMP3 decodes an MP3 stream into a mono Buffer at the stream's rate.
// The decoder always yields interleaved 16-bit stereo.
func DecodeMP3(r io.Reader) (Buffer, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", ErrInvalidMP3, err)
	}

	data, err := io.ReadAll(dec)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", ErrInvalidMP3, err)
	}

	return NewBuffer(SamplesFromPCM(data, 2), dec.SampleRate())
}

// ShineEncoder encodes mono MP3 in pure Go, so export works without ffmpeg.
type ShineEncoder struct{}

// NewShineEncoder creates a ShineEncoder.
func NewShineEncoder() *ShineEncoder {
	return &ShineEncoder{}
}

// Format implements Encoder.
func (e *ShineEncoder) Format() Format {
	return FormatMP3
}

// Encode implements Encoder. The tail is padded with silence up to a whole
// frame.
func (e *ShineEncoder) Encode(ctx context.Context, w io.Writer, b Buffer) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if !shineRates[b.SampleRate] {
		return fmt.Errorf("%w: built-in MP3 encoder cannot encode at %d Hz", ErrUnsupportedFormat, b.SampleRate)
	}

	n := len(b.Samples)
	if rem := n % shineFrame; rem != 0 || n == 0 {
		n += shineFrame - rem
	}
	padded := make([]int16, n)
	copy(padded, b.Samples)

	ew := &errWriter{w: w}
	enc := shine.NewEncoder(b.SampleRate, 1)
	enc.Write(ew, padded)
	if ew.err != nil {
		return fmt.Errorf("write MP3: %w", ew.err)
	}
	return nil
}

// errWriter records the first write error so it survives encoders that
// drop it.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	ew.err = err
	return n, err
}

var _ Encoder = (*ShineEncoder)(nil)
