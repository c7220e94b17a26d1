// Package capture records fixed-length mono takes from an input device.
// Device choice is an explicit Config value handed to the Recorder; nothing
// here keeps process-wide selection state.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/palabra/internal/audio"
)

// Static errors for device selection and recording.
var (
	// ErrNoUsableDevice is returned when no input device passes the probe.
	ErrNoUsableDevice = errors.New("capture: no usable input device")
	// ErrDeviceNotFound is returned when a configured index does not exist.
	ErrDeviceNotFound = errors.New("capture: device not found")
	// ErrDeviceUnusable is returned when the configured device fails the probe.
	ErrDeviceUnusable = errors.New("capture: device unusable")
)

// AutoSelect asks SelectDevice for the first usable device.
const AutoSelect = -1

// Device describes an input device as reported by the backend.
type Device struct {
	Index     int
	Name      string
	IsDefault bool
}

// String formats the device for listings.
func (d Device) String() string {
	if d.IsDefault {
		return fmt.Sprintf("%d: %s (default)", d.Index, d.Name)
	}
	return fmt.Sprintf("%d: %s", d.Index, d.Name)
}

// Config selects a device and the recording format.
type Config struct {
	// DeviceIndex is the device to use, or AutoSelect.
	DeviceIndex int
	// SampleRate is the capture rate in Hz.
	SampleRate int
	// Duration is the length of one take.
	Duration time.Duration
}

// Backend defines the interface to the platform audio system.
type Backend interface {
	// Devices lists input devices in a stable order.
	Devices(ctx context.Context) ([]Device, error)

	// Probe reports whether d can capture mono audio at sampleRate.
	Probe(ctx context.Context, d Device, sampleRate int) bool

	// Record captures exactly the requested duration from d.
	Record(ctx context.Context, d Device, sampleRate int, length time.Duration) (audio.Buffer, error)
}

// SelectDevice resolves cfg.DeviceIndex against the backend's devices.
// An explicit index must exist and pass the probe; AutoSelect returns the
// first device that passes.
func SelectDevice(ctx context.Context, b Backend, cfg Config) (Device, error) {
	devices, err := b.Devices(ctx)
	if err != nil {
		return Device{}, fmt.Errorf("list devices: %w", err)
	}

	if cfg.DeviceIndex != AutoSelect {
		for _, d := range devices {
			if d.Index != cfg.DeviceIndex {
				continue
			}
			if !b.Probe(ctx, d, cfg.SampleRate) {
				return Device{}, fmt.Errorf("%w: %s at %d Hz", ErrDeviceUnusable, d, cfg.SampleRate)
			}
			return d, nil
		}
		return Device{}, fmt.Errorf("%w: index %d", ErrDeviceNotFound, cfg.DeviceIndex)
	}

	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return Device{}, err
		}
		if b.Probe(ctx, d, cfg.SampleRate) {
			return d, nil
		}
	}
	return Device{}, ErrNoUsableDevice
}

// Recorder records takes from one selected device.
type Recorder struct {
	backend Backend
	cfg     Config
	device  Device
	logger  *slog.Logger
}

// NewRecorder selects the device described by cfg and returns a Recorder
// bound to it.
func NewRecorder(ctx context.Context, b Backend, cfg Config, logger *slog.Logger) (*Recorder, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: got %d", audio.ErrInvalidSampleRate, cfg.SampleRate)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("capture: duration must be positive, got %s", cfg.Duration)
	}
	if logger == nil {
		logger = slog.Default()
	}

	d, err := SelectDevice(ctx, b, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("selected input device",
		slog.Int("index", d.Index),
		slog.String("name", d.Name),
		slog.Int("sample_rate", cfg.SampleRate),
	)
	return &Recorder{backend: b, cfg: cfg, device: d, logger: logger}, nil
}

// Device returns the selected device.
func (r *Recorder) Device() Device {
	return r.device
}

// Record captures one take of the configured duration.
func (r *Recorder) Record(ctx context.Context) (audio.Buffer, error) {
	start := time.Now()
	b, err := r.backend.Record(ctx, r.device, r.cfg.SampleRate, r.cfg.Duration)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("record from %s: %w", r.device.Name, err)
	}
	r.logger.Debug("recorded take",
		slog.Int("samples", b.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return b, nil
}
