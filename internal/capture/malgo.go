package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/maauso/palabra/internal/audio"
)

// probeLength is how long Probe records to decide a device works.
const probeLength = 100 * time.Millisecond

// Malgo implements Backend on miniaudio.
type Malgo struct {
	mu    sync.Mutex
	ctx   *malgo.AllocatedContext
	infos []malgo.DeviceInfo
}

// OpenMalgo initializes the platform audio context. Close must be called
// to release it.
func OpenMalgo() (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Malgo{ctx: ctx}, nil
}

// Close releases the audio context.
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

// Devices implements Backend.
func (m *Malgo) Devices(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	m.infos = infos

	devices := make([]Device, len(infos))
	for i := range infos {
		devices[i] = Device{
			Index:     i,
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault != 0,
		}
	}
	return devices, nil
}

// Probe implements Backend by opening a short capture.
func (m *Malgo) Probe(ctx context.Context, d Device, sampleRate int) bool {
	_, err := m.Record(ctx, d, sampleRate, probeLength)
	return err == nil
}

// Record implements Backend.
func (m *Malgo) Record(ctx context.Context, d Device, sampleRate int, length time.Duration) (audio.Buffer, error) {
	m.mu.Lock()
	if d.Index < 0 || d.Index >= len(m.infos) {
		m.mu.Unlock()
		return audio.Buffer{}, fmt.Errorf("%w: index %d", ErrDeviceNotFound, d.Index)
	}
	info := m.infos[d.Index]
	actx := m.ctx.Context
	m.mu.Unlock()

	want := audio.DurationToSamples(length, sampleRate) * 2
	var (
		mu   sync.Mutex
		pcm  = make([]byte, 0, want)
		done = make(chan struct{})
		once sync.Once
	)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.Capture.DeviceID = info.ID.Pointer()
	cfg.SampleRate = uint32(sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			mu.Lock()
			defer mu.Unlock()
			if len(pcm) >= want {
				return
			}
			pcm = append(pcm, in[:min(len(in), want-len(pcm))]...)
			if len(pcm) >= want {
				once.Do(func() { close(done) })
			}
		},
	}

	dev, err := malgo.InitDevice(actx, cfg, callbacks)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("open %s: %w", d.Name, err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return audio.Buffer{}, fmt.Errorf("start %s: %w", d.Name, err)
	}

	// Give slow devices a grace period beyond the take length.
	timer := time.NewTimer(length + 2*time.Second)
	defer timer.Stop()

	select {
	case <-done:
	case <-ctx.Done():
		return audio.Buffer{}, ctx.Err()
	case <-timer.C:
		return audio.Buffer{}, fmt.Errorf("%s delivered no audio in time", d.Name)
	}

	mu.Lock()
	samples := audio.SamplesFromPCM(pcm, 1)
	mu.Unlock()
	return audio.NewBuffer(samples, sampleRate)
}

var _ Backend = (*Malgo)(nil)
