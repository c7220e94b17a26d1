package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// FFmpeg runs the ffmpeg CLI with raw PCM piped through stdin and stdout.
type FFmpeg struct {
	path string
}

// NewFFmpeg creates a new FFmpeg runner.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpeg(ffmpegPath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{path: ffmpegPath}
}

// Path returns the ffmpeg binary in use.
func (f *FFmpeg) Path() string {
	return f.path
}

// Decode converts any container ffmpeg understands into a mono Buffer
// resampled to sampleRate.
func (f *FFmpeg) Decode(ctx context.Context, path string, sampleRate int) (Buffer, error) {
	if sampleRate <= 0 {
		return Buffer{}, fmt.Errorf("%w: got %d", ErrInvalidSampleRate, sampleRate)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Buffer{}, fmt.Errorf("input file does not exist: %s", path)
	}

	args := []string{
		"-hide_banner", "-nostdin",
		"-i", path,
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	}

	var stdout bytes.Buffer
	if err := f.run(ctx, args, nil, &stdout); err != nil {
		return Buffer{}, err
	}
	return NewBuffer(SamplesFromPCM(stdout.Bytes(), 1), sampleRate)
}

// encode pipes b as raw PCM into ffmpeg and copies the encoded container
// to w. extra holds the codec arguments placed before the output.
func (f *FFmpeg) encode(ctx context.Context, w io.Writer, b Buffer, format Format, extra ...string) error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, b.SampleRate)
	}

	args := []string{
		"-hide_banner", "-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(b.SampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	}
	args = append(args, extra...)
	args = append(args, "-f", string(format), "pipe:1")

	return f.run(ctx, args, bytes.NewReader(PCMBytes(b.Samples)), w)
}

// run executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (f *FFmpeg) run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	// #nosec G204 - path is set by the application, not user input
	cmd := exec.CommandContext(ctx, f.path, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// FFmpegEncoder implements Encoder by shelling out to ffmpeg.
type FFmpegEncoder struct {
	ffmpeg      *FFmpeg
	format      Format
	bitrateKbps int
}

// NewFFmpegEncoder creates an encoder for format. bitrateKbps applies to
// lossy formats; zero or negative values fall back to 192.
func NewFFmpegEncoder(ff *FFmpeg, format Format, bitrateKbps int) *FFmpegEncoder {
	if bitrateKbps <= 0 {
		bitrateKbps = 192
	}
	return &FFmpegEncoder{ffmpeg: ff, format: format, bitrateKbps: bitrateKbps}
}

// Format implements Encoder.
func (e *FFmpegEncoder) Format() Format {
	return e.format
}

// Encode implements Encoder.
func (e *FFmpegEncoder) Encode(ctx context.Context, w io.Writer, b Buffer) error {
	var codec []string
	switch e.format {
	case FormatMP3:
		codec = []string{"-codec:a", "libmp3lame", "-b:a", strconv.Itoa(e.bitrateKbps) + "k"}
	case FormatWAV:
		// A piped WAV has no seekable header, so ffmpeg writes it with
		// placeholder sizes; most readers accept that.
		codec = []string{"-codec:a", "pcm_s16le"}
	case FormatOGG:
		codec = []string{"-codec:a", "libvorbis", "-b:a", strconv.Itoa(e.bitrateKbps) + "k"}
	case FormatWebM:
		codec = []string{"-codec:a", "libopus", "-b:a", strconv.Itoa(e.bitrateKbps) + "k"}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, e.format)
	}
	return e.ffmpeg.encode(ctx, w, b, e.format, codec...)
}

var _ Encoder = (*FFmpegEncoder)(nil)
