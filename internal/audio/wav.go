package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a readable PCM WAV file.
var ErrInvalidWAV = errors.New("audio: invalid WAV file")

// DecodeWAV reads a PCM WAV stream of any bit depth and channel count and
// returns it as a mono 16-bit Buffer at the file's sample rate.
func DecodeWAV(r io.ReadSeeker) (Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Buffer{}, ErrInvalidWAV
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	samples := downmix(pcm.Data, pcm.Format.NumChannels, pcm.SourceBitDepth)
	return NewBuffer(samples, pcm.Format.SampleRate)
}

// WAVEncoder writes 16-bit mono PCM WAV files.
// The underlying encoder needs to seek back to patch the header, so output
// is staged in a temp file and then copied to the destination writer.
type WAVEncoder struct {
	tempDir string
}

// NewWAVEncoder creates a WAVEncoder that stages files in tempDir.
// If tempDir is empty, os.TempDir() is used.
func NewWAVEncoder(tempDir string) *WAVEncoder {
	return &WAVEncoder{tempDir: tempDir}
}

// Format implements Encoder.
func (e *WAVEncoder) Format() Format {
	return FormatWAV
}

// Encode implements Encoder.
func (e *WAVEncoder) Encode(ctx context.Context, w io.Writer, b Buffer) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, b.SampleRate)
	}

	f, err := os.CreateTemp(e.tempDir, "clip_*.wav")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, b.SampleRate, 16, 1, 1)
	err = enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return fmt.Errorf("write WAV samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize WAV: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind staging file: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy WAV: %w", err)
	}
	return nil
}

var _ Encoder = (*WAVEncoder)(nil)
