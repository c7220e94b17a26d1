package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/palabra/internal/audio"
)

type fakeBackend struct {
	devices   []Device
	listErr   error
	usable    map[int]bool
	probed    []int
	recordErr error
}

func (f *fakeBackend) Devices(context.Context) ([]Device, error) {
	return f.devices, f.listErr
}

func (f *fakeBackend) Probe(_ context.Context, d Device, _ int) bool {
	f.probed = append(f.probed, d.Index)
	return f.usable[d.Index]
}

func (f *fakeBackend) Record(_ context.Context, _ Device, sampleRate int, length time.Duration) (audio.Buffer, error) {
	if f.recordErr != nil {
		return audio.Buffer{}, f.recordErr
	}
	return audio.Buffer{
		Samples:    make([]int16, audio.DurationToSamples(length, sampleRate)),
		SampleRate: sampleRate,
	}, nil
}

func newFake(usable ...int) *fakeBackend {
	f := &fakeBackend{
		devices: []Device{
			{Index: 0, Name: "HDMI output monitor"},
			{Index: 1, Name: "USB microphone", IsDefault: true},
			{Index: 2, Name: "Built-in microphone"},
		},
		usable: map[int]bool{},
	}
	for _, i := range usable {
		f.usable[i] = true
	}
	return f
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSelectDevice_Auto(t *testing.T) {
	f := newFake(1, 2)
	d, err := SelectDevice(context.Background(), f, Config{DeviceIndex: AutoSelect, SampleRate: 44100})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Index)
	assert.Equal(t, []int{0, 1}, f.probed, "probing stops at the first usable device")
}

func TestSelectDevice_Explicit(t *testing.T) {
	f := newFake(2)
	d, err := SelectDevice(context.Background(), f, Config{DeviceIndex: 2, SampleRate: 44100})
	require.NoError(t, err)
	assert.Equal(t, "Built-in microphone", d.Name)
	assert.Equal(t, []int{2}, f.probed)
}

func TestSelectDevice_Errors(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		index   int
		wantErr error
	}{
		{"nothing usable", newFake(), AutoSelect, ErrNoUsableDevice},
		{"unknown index", newFake(0, 1, 2), 7, ErrDeviceNotFound},
		{"explicit device fails probe", newFake(1), 0, ErrDeviceUnusable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SelectDevice(context.Background(), tt.backend, Config{DeviceIndex: tt.index, SampleRate: 44100})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("listing fails", func(t *testing.T) {
		f := newFake()
		f.listErr = errors.New("no backend")
		_, err := SelectDevice(context.Background(), f, Config{DeviceIndex: AutoSelect})
		assert.ErrorContains(t, err, "no backend")
	})
}

func TestRecorder(t *testing.T) {
	f := newFake(2)
	cfg := Config{DeviceIndex: AutoSelect, SampleRate: 16000, Duration: 3 * time.Second}

	rec, err := NewRecorder(context.Background(), f, cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Device().Index)

	b, err := rec.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 48000, b.Len())
	assert.Equal(t, 16000, b.SampleRate)
}

func TestRecorder_RecordError(t *testing.T) {
	f := newFake(0)
	f.recordErr = errors.New("overrun")

	rec, err := NewRecorder(context.Background(), f, Config{DeviceIndex: 0, SampleRate: 16000, Duration: time.Second}, nil)
	require.NoError(t, err)

	_, err = rec.Record(context.Background())
	assert.ErrorContains(t, err, "overrun")
	assert.ErrorContains(t, err, "HDMI output monitor")
}

func TestNewRecorder_InvalidConfig(t *testing.T) {
	_, err := NewRecorder(context.Background(), newFake(0), Config{SampleRate: 0, Duration: time.Second}, nil)
	assert.ErrorIs(t, err, audio.ErrInvalidSampleRate)

	_, err = NewRecorder(context.Background(), newFake(0), Config{SampleRate: 16000}, nil)
	assert.Error(t, err)
}

func TestDevice_String(t *testing.T) {
	assert.Equal(t, "1: USB microphone (default)", Device{Index: 1, Name: "USB microphone", IsDefault: true}.String())
	assert.Equal(t, "0: Line in", Device{Index: 0, Name: "Line in"}.String())
}
