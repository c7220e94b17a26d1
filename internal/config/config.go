// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/palabra/internal/audio"
	"github.com/maauso/palabra/internal/segment"
)

// Recognizer names accepted by RECOGNIZER.
const (
	RecognizerNone    = "none"
	RecognizerOpenAI  = "openai"
	RecognizerWhisper = "whisper"
)

// Encoder names accepted by EXPORT_ENCODER.
const (
	EncoderShine  = "shine"
	EncoderFFmpeg = "ffmpeg"
)

// Static errors for configuration validation.
var (
	// ErrInvalidConfig wraps field validation failures.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrOpenAIKeyRequired is returned when RECOGNIZER=openai without OPENAI_API_KEY.
	ErrOpenAIKeyRequired = errors.New("config: OPENAI_API_KEY is required when RECOGNIZER=openai")
	// ErrWhisperURLRequired is returned when RECOGNIZER=whisper without WHISPER_URL.
	ErrWhisperURLRequired = errors.New("config: WHISPER_URL is required when RECOGNIZER=whisper")
	// ErrEncoderFormat is returned when the built-in encoders are asked for
	// a format only ffmpeg can write.
	ErrEncoderFormat = errors.New("config: EXPORT_ENCODER=shine supports only mp3 and wav")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Storage settings
	TempDir    string `env:"TEMP_DIR, default=/tmp/palabra" json:"temp_dir"`
	ArchiveDir string `env:"ARCHIVE_DIR, default=./recordings" json:"archive_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Session settings
	DatabaseURL string `env:"DATABASE_URL" json:"-"` // Masked in JSON, may hold a password
	WordsFile   string `env:"WORDS_FILE" json:"words_file,omitempty"`
	Language    string `env:"WORDS_LANGUAGE, default=es" json:"language" validate:"required"`

	// Capture settings
	SampleRate    int `env:"SAMPLE_RATE, default=44100" json:"sample_rate" validate:"gt=0"`
	RecordSeconds int `env:"RECORD_SECONDS, default=3" json:"record_seconds" validate:"gt=0"`
	CaptureDevice int `env:"CAPTURE_DEVICE, default=-1" json:"capture_device" validate:"min=-1"`

	// Segmentation settings
	SegWindowMs     int     `env:"SEG_WINDOW_MS, default=60" json:"seg_window_ms" validate:"gt=0"`
	SegMinSilenceMs int     `env:"SEG_MIN_SILENCE_MS, default=60" json:"seg_min_silence_ms" validate:"gt=0"`
	SegOffsetDB     float64 `env:"SEG_OFFSET_DB, default=20" json:"seg_offset_db" validate:"min=0"`
	SegMergeGapMs   int     `env:"SEG_MERGE_GAP_MS, default=150" json:"seg_merge_gap_ms" validate:"gt=0"`
	SegMarginMs     int     `env:"SEG_MARGIN_MS, default=10" json:"seg_margin_ms" validate:"gt=0"`
	SegMinSegmentMs int     `env:"SEG_MIN_SEGMENT_MS, default=80" json:"seg_min_segment_ms" validate:"min=0"`

	// Processing settings
	DenoiseEnabled       bool    `env:"DENOISE_ENABLED, default=true" json:"denoise_enabled"`
	ExportFormat         string  `env:"EXPORT_FORMAT, default=mp3" json:"export_format" validate:"oneof=mp3 wav webm ogg"`
	ExportEncoder        string  `env:"EXPORT_ENCODER, default=shine" json:"export_encoder" validate:"oneof=shine ffmpeg"`
	ExportBitrateKbps    int     `env:"EXPORT_BITRATE_KBPS, default=192" json:"export_bitrate_kbps" validate:"gt=0"`
	FFmpegPath           string  `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	GainDB               float64 `env:"GAIN_DB, default=6" json:"gain_db"`
	MaxConcurrentExports int     `env:"MAX_CONCURRENT_EXPORTS, default=4" json:"max_concurrent_exports" validate:"gt=0"`

	// Recognition settings
	Recognizer    string `env:"RECOGNIZER, default=none" json:"recognizer" validate:"oneof=none openai whisper"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY" json:"-"` // Masked in JSON
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" json:"openai_base_url,omitempty" validate:"omitempty,url"`
	OpenAIModel   string `env:"OPENAI_MODEL, default=whisper-1" json:"openai_model"`
	WhisperURL    string `env:"WHISPER_URL" json:"whisper_url,omitempty" validate:"omitempty,url"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`                              // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PostgresEnabled returns true if sessions are stored in PostgreSQL.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field ranges and the settings that depend on each other.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Recognizer {
	case RecognizerOpenAI:
		if c.OpenAIAPIKey == "" {
			return ErrOpenAIKeyRequired
		}
	case RecognizerWhisper:
		if c.WhisperURL == "" {
			return ErrWhisperURLRequired
		}
	}

	if c.ExportEncoder == EncoderShine && c.ExportFormat != "mp3" && c.ExportFormat != "wav" {
		return ErrEncoderFormat
	}
	return nil
}

// SegmentParams converts the millisecond tunables into segmentation
// parameters.
func (c *Config) SegmentParams() segment.Params {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return segment.Params{
		Window:     ms(c.SegWindowMs),
		MinSilence: ms(c.SegMinSilenceMs),
		OffsetDB:   c.SegOffsetDB,
		MergeGap:   ms(c.SegMergeGapMs),
		Margin:     ms(c.SegMarginMs),
		MinSegment: ms(c.SegMinSegmentMs),
	}
}

// ExportOpts returns the clip export options.
func (c *Config) ExportOpts() audio.ExportOpts {
	return audio.ExportOpts{
		Format:      audio.Format(c.ExportFormat),
		UseFFmpeg:   c.ExportEncoder == EncoderFFmpeg,
		BitrateKbps: c.ExportBitrateKbps,
		TempDir:     c.TempDir,
	}
}

// RecordDuration returns the length of one microphone recording.
func (c *Config) RecordDuration() time.Duration {
	return time.Duration(c.RecordSeconds) * time.Second
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, ArchiveDir: %s, S3Bucket: %s, S3Region: %s, Postgres: %t, Language: %s, SampleRate: %d, ExportFormat: %s, ExportEncoder: %s, Recognizer: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.ArchiveDir,
		c.S3Bucket,
		c.S3Region,
		c.PostgresEnabled(),
		c.Language,
		c.SampleRate,
		c.ExportFormat,
		c.ExportEncoder,
		c.Recognizer,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
