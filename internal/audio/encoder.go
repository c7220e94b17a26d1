// Package audio provides the PCM buffer type and the codecs that move it
// in and out of containers.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for container formats with no codec.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Format names a container format by its file extension.
type Format string

// Supported formats.
const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatWebM Format = "webm"
	FormatOGG  Format = "ogg"
)

// ParseFormat validates a format name, case-insensitively and with or
// without a leading dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	switch f {
	case FormatWAV, FormatMP3, FormatWebM, FormatOGG:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// Encoder defines the interface for writing a Buffer in a container format.
type Encoder interface {
	// Encode writes b to w. Implementations must not retain b.
	Encode(ctx context.Context, w io.Writer, b Buffer) error

	// Format reports the container the encoder produces.
	Format() Format
}

// ExportOpts configures clip export.
type ExportOpts struct {
	// Format is the container written for every clip.
	// Default: mp3.
	Format Format

	// UseFFmpeg selects the ffmpeg encoder instead of the built-in ones.
	UseFFmpeg bool

	// BitrateKbps is the MP3 bitrate passed to ffmpeg. The built-in MP3
	// encoder uses its own fixed rate.
	// Default: 192.
	BitrateKbps int

	// TempDir is where encoders that need a seekable file stage output.
	TempDir string
}

// DefaultExportOpts returns the default clip export options.
func DefaultExportOpts() ExportOpts {
	return ExportOpts{
		Format:      FormatMP3,
		BitrateKbps: 192,
	}
}

// NewEncoder returns the encoder selected by opts. ff may be nil when
// opts.UseFFmpeg is false.
func NewEncoder(opts ExportOpts, ff *FFmpeg) (Encoder, error) {
	if opts.UseFFmpeg {
		if ff == nil {
			return nil, errors.New("audio: ffmpeg encoder requested without ffmpeg")
		}
		return NewFFmpegEncoder(ff, opts.Format, opts.BitrateKbps), nil
	}
	switch opts.Format {
	case FormatMP3:
		return NewShineEncoder(), nil
	case FormatWAV:
		return NewWAVEncoder(opts.TempDir), nil
	default:
		return nil, fmt.Errorf("%w: no built-in encoder for %q", ErrUnsupportedFormat, opts.Format)
	}
}

// FileDecoder reads audio files of any supported format into mono buffers.
// WAV and MP3 are decoded natively; other containers go through ffmpeg.
type FileDecoder struct {
	ffmpeg     *FFmpeg
	sampleRate int
}

// NewFileDecoder creates a FileDecoder. ff may be nil, in which case only
// WAV and MP3 are accepted. sampleRate is the rate ffmpeg resamples to.
func NewFileDecoder(ff *FFmpeg, sampleRate int) *FileDecoder {
	return &FileDecoder{ffmpeg: ff, sampleRate: sampleRate}
}

// DecodeFile decodes the file at path, picking the codec by extension.
func (d *FileDecoder) DecodeFile(ctx context.Context, path string) (Buffer, error) {
	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return Buffer{}, err
	}

	switch format {
	case FormatWAV, FormatMP3:
		f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
		if err != nil {
			return Buffer{}, fmt.Errorf("open audio file: %w", err)
		}
		defer func() { _ = f.Close() }()
		if format == FormatWAV {
			return DecodeWAV(f)
		}
		return DecodeMP3(f)
	default:
		if d.ffmpeg == nil {
			return Buffer{}, fmt.Errorf("%w: %s requires ffmpeg", ErrUnsupportedFormat, format)
		}
		return d.ffmpeg.Decode(ctx, path, d.sampleRate)
	}
}
