package practice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/maauso/palabra/internal/audio"
	"github.com/maauso/palabra/internal/metrics"
	"github.com/maauso/palabra/internal/recognize"
	"github.com/maauso/palabra/internal/storage"
	"github.com/maauso/palabra/internal/words"
)

const testRate = 16000

// fakeEncoder writes a short text header instead of real audio and tracks
// how many encodes run at once.
type fakeEncoder struct {
	err     error
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (e *fakeEncoder) Format() audio.Format { return audio.FormatWAV }

func (e *fakeEncoder) Encode(_ context.Context, w io.Writer, b audio.Buffer) error {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		seen := e.maxSeen.Load()
		if n <= seen || e.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(e.delay)

	if e.err != nil {
		return e.err
	}
	_, err := fmt.Fprintf(w, "clip:%d", b.Len())
	return err
}

type fakeRecognizer struct {
	text string
	err  error

	mu    sync.Mutex
	clips []recognize.Clip
}

func (r *fakeRecognizer) Transcribe(_ context.Context, clip recognize.Clip) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips = append(r.clips, clip)
	return r.text, r.err
}

// twoBursts is 1.5 s at 16 kHz: silence, a 300 ms tone, 300 ms of
// silence, another 300 ms tone and trailing silence.
func twoBursts() audio.Buffer {
	samples := make([]int16, testRate*3/2)
	burst := func(from, to time.Duration) {
		start := audio.DurationToSamples(from, testRate)
		end := audio.DurationToSamples(to, testRate)
		for i := start; i < end; i++ {
			samples[i] = int16(10000 * math.Sin(2*math.Pi*440*float64(i)/testRate))
		}
	}
	burst(300*time.Millisecond, 600*time.Millisecond)
	burst(900*time.Millisecond, 1200*time.Millisecond)
	return audio.Buffer{Samples: samples, SampleRate: testRate}
}

type testEnv struct {
	svc     *Service
	repo    *MemoryRepository
	store   *storage.LocalStorage
	encoder *fakeEncoder
}

func newTestEnv(t *testing.T, mutate func(*Deps, *Config)) *testEnv {
	t.Helper()

	root := t.TempDir()
	store, err := storage.NewLocalStorage(filepath.Join(root, "tmp"), filepath.Join(root, "archive"))
	require.NoError(t, err)

	list, err := words.New("es", []string{"Feliz", "Mapa"})
	require.NoError(t, err)

	env := &testEnv{repo: NewMemoryRepository(), store: store, encoder: &fakeEncoder{}}
	deps := Deps{
		Repo:    env.repo,
		Storage: store,
		Encoder: env.encoder,
		Decoder: audio.NewFileDecoder(nil, testRate),
	}
	cfg := Config{Words: list, GainDB: 6}
	if mutate != nil {
		mutate(&deps, &cfg)
	}

	env.svc, err = NewService(deps, cfg)
	require.NoError(t, err)
	return env
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(Deps{}, Config{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestNewService_Defaults(t *testing.T) {
	env := newTestEnv(t, func(_ *Deps, cfg *Config) { cfg.Words = words.List{} })

	assert.Equal(t, words.Default(), env.svc.Words())
	assert.Equal(t, 4, env.svc.maxConcurrentExports)
	assert.NotZero(t, env.svc.params.Window)
}

func TestService_Create(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	t.Run("default list", func(t *testing.T) {
		s, err := env.svc.Create(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"Feliz", "Mapa"}, s.Words)
		assert.Equal(t, "es", s.Language)

		saved, err := env.repo.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, saved.Status)
	})

	t.Run("custom list", func(t *testing.T) {
		s, err := env.svc.Create(ctx, []string{" Ñandú "})
		require.NoError(t, err)
		assert.Equal(t, []string{"Ñandú"}, s.Words)
	})

	t.Run("blank word", func(t *testing.T) {
		_, err := env.svc.Create(ctx, []string{"Feliz", " "})
		assert.ErrorIs(t, err, words.ErrInvalidList)
	})
}

func TestService_SubmitAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	s, err := env.svc.Create(ctx, nil)
	require.NoError(t, err)

	attempt, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)

	assert.Equal(t, 1, attempt.Number)
	assert.Equal(t, "Feliz", attempt.Word)
	assert.NotEmpty(t, attempt.ID)
	assert.Less(t, attempt.ThresholdDB, 0.0)

	prefix := s.ID + "/01_feliz/attempt_1/"
	assert.Equal(t, 0, attempt.Whole.Index)
	assert.Equal(t, prefix+"word.wav", attempt.Whole.Key)
	assert.InDelta(t, 290, attempt.Whole.StartMs, 5)
	assert.InDelta(t, 1210, attempt.Whole.EndMs, 5)

	require.Len(t, attempt.Letters, 2)
	for i, l := range attempt.Letters {
		assert.Equal(t, i+1, l.Index)
		assert.Equal(t, fmt.Sprintf("%sletter_%d.wav", prefix, i+1), l.Key)

		rc, err := env.store.Open(ctx, l.Key)
		require.NoError(t, err)
		data, _ := io.ReadAll(rc)
		_ = rc.Close()
		assert.Contains(t, string(data), "clip:")
	}
	assert.Less(t, attempt.Letters[0].EndMs, attempt.Letters[1].StartMs)

	saved, err := env.repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, saved.Attempts, 1)

	second, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Number)
	assert.Equal(t, s.ID+"/01_feliz/attempt_2/word.wav", second.Whole.Key)
}

func TestService_SubmitAttempt_EmptyRecording(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	s, _ := env.svc.Create(ctx, nil)

	attempt, err := env.svc.SubmitAttempt(ctx, s.ID, audio.Buffer{SampleRate: testRate})
	require.NoError(t, err)

	assert.Empty(t, attempt.Letters)
	assert.Empty(t, attempt.Whole.Key)
}

func TestService_SubmitAttempt_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid sample rate", func(t *testing.T) {
		env := newTestEnv(t, nil)
		s, _ := env.svc.Create(ctx, nil)
		_, err := env.svc.SubmitAttempt(ctx, s.ID, audio.Buffer{Samples: []int16{1}})
		assert.ErrorIs(t, err, ErrInvalidAudio)
	})

	t.Run("unknown session", func(t *testing.T) {
		env := newTestEnv(t, nil)
		_, err := env.svc.SubmitAttempt(ctx, "missing", twoBursts())
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("abandoned session", func(t *testing.T) {
		env := newTestEnv(t, nil)
		s, _ := env.svc.Create(ctx, nil)
		_, err := env.svc.Abandon(ctx, s.ID)
		require.NoError(t, err)

		_, err = env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
		assert.ErrorIs(t, err, ErrSessionFinished)
	})

	t.Run("export failure is counted and nothing is stored", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
		m, err := metrics.New(mp)
		require.NoError(t, err)

		encErr := errors.New("disk full")
		env := newTestEnv(t, func(d *Deps, _ *Config) {
			d.Encoder = &fakeEncoder{err: encErr}
			d.Metrics = m
		})
		s, _ := env.svc.Create(ctx, nil)

		_, err = env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
		assert.ErrorIs(t, err, encErr)

		saved, _ := env.repo.FindByID(ctx, s.ID)
		assert.Empty(t, saved.Attempts)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(ctx, &rm))
		var failures int64
		for _, sm := range rm.ScopeMetrics {
			for _, met := range sm.Metrics {
				if met.Name == "palabra.export.failures" {
					for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
						failures += dp.Value
					}
				}
			}
		}
		assert.Positive(t, failures)
	})
}

func TestService_SubmitAttempt_BoundsConcurrency(t *testing.T) {
	enc := &fakeEncoder{delay: 20 * time.Millisecond}
	env := newTestEnv(t, func(d *Deps, cfg *Config) {
		d.Encoder = enc
		cfg.MaxConcurrentExports = 1
	})
	ctx := context.Background()
	s, _ := env.svc.Create(ctx, nil)

	_, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)
	assert.Equal(t, int32(1), enc.maxSeen.Load())
}

func TestService_SubmitAttempt_Recognition(t *testing.T) {
	ctx := context.Background()

	t.Run("transcript is stored", func(t *testing.T) {
		rec := &fakeRecognizer{text: "feliz"}
		env := newTestEnv(t, func(d *Deps, _ *Config) { d.Recognizer = rec })
		s, _ := env.svc.Create(ctx, nil)

		attempt, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
		require.NoError(t, err)
		assert.Equal(t, "feliz", attempt.Heard)

		require.Len(t, rec.clips, 1)
		assert.Equal(t, "word.wav", rec.clips[0].Name)
		assert.Equal(t, "es", rec.clips[0].Language)
		assert.Contains(t, string(rec.clips[0].Data), "clip:")
	})

	t.Run("recognizer failure is not fatal", func(t *testing.T) {
		rec := &fakeRecognizer{err: errors.New("offline")}
		env := newTestEnv(t, func(d *Deps, _ *Config) { d.Recognizer = rec })
		s, _ := env.svc.Create(ctx, nil)

		attempt, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
		require.NoError(t, err)
		assert.Empty(t, attempt.Heard)
	})
}

func TestService_SubmitUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	s, _ := env.svc.Create(ctx, nil)

	var wav bytes.Buffer
	require.NoError(t, audio.NewWAVEncoder(t.TempDir()).Encode(ctx, &wav, twoBursts()))

	attempt, err := env.svc.SubmitUpload(ctx, s.ID, "upload.wav", &wav)
	require.NoError(t, err)
	assert.Len(t, attempt.Letters, 2)

	entries, err := os.ReadDir(env.store.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "staged upload was not removed")

	_, err = env.svc.SubmitUpload(ctx, s.ID, "upload.wav", bytes.NewReader([]byte("not audio")))
	assert.ErrorIs(t, err, ErrInvalidAudio)

	entries, _ = os.ReadDir(env.store.TempDir())
	assert.Empty(t, entries)
}

func TestService_Confirm(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	s, _ := env.svc.Create(ctx, nil)

	_, err := env.svc.Confirm(ctx, s.ID, "feliz")
	assert.ErrorIs(t, err, ErrNoAttempt)

	_, err = env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)

	conf, err := env.svc.Confirm(ctx, s.ID, "felis")
	require.NoError(t, err)
	assert.False(t, conf.Match.Exact)
	assert.True(t, conf.Match.Near())
	assert.Nil(t, conf.Result)
	assert.Equal(t, "Feliz", conf.NextWord)
	assert.Equal(t, "typed", conf.Source)

	_, err = env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)

	conf, err = env.svc.Confirm(ctx, s.ID, "FELIZ")
	require.NoError(t, err)
	assert.True(t, conf.Match.Exact)
	require.NotNil(t, conf.Result)
	assert.Equal(t, 2, conf.Result.Attempts)
	assert.Equal(t, "Mapa", conf.NextWord)
	assert.False(t, conf.Finished)

	_, err = env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)
	conf, err = env.svc.Confirm(ctx, s.ID, "mapa")
	require.NoError(t, err)
	assert.True(t, conf.Finished)
	assert.Empty(t, conf.NextWord)

	summary, err := env.svc.Summarize(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, 3, summary.TotalAttempts)
	assert.Empty(t, summary.Remaining)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, WordResult{Word: "Feliz", Attempts: 2, CompletedAt: summary.Results[0].CompletedAt}, summary.Results[0])
	assert.Equal(t, 1, summary.Results[1].Attempts)

	_, err = env.svc.Confirm(ctx, s.ID, "mapa")
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestService_Confirm_UsesTranscript(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecognizer{text: "Feliz"}
	env := newTestEnv(t, func(d *Deps, _ *Config) { d.Recognizer = rec })
	s, _ := env.svc.Create(ctx, nil)

	_, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)

	conf, err := env.svc.Confirm(ctx, s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "heard", conf.Source)
	assert.True(t, conf.Match.Exact)
}

func TestService_Confirm_NothingToConfirm(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	s, _ := env.svc.Create(ctx, nil)
	_, _ = env.svc.SubmitAttempt(ctx, s.ID, twoBursts())

	_, err := env.svc.Confirm(ctx, s.ID, "")
	assert.ErrorIs(t, err, ErrNothingToConfirm)
}

func TestService_AbandonAndDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	s, _ := env.svc.Create(ctx, nil)

	abandoned, err := env.svc.Abandon(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, abandoned.Status)

	_, err = env.svc.Abandon(ctx, s.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	summary, err := env.svc.Summarize(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Feliz", "Mapa"}, summary.Remaining)

	require.NoError(t, env.svc.Delete(ctx, s.ID))
	_, err = env.svc.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_ConcurrentAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	s, _ := env.svc.Create(ctx, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	saved, err := env.repo.FindByID(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, saved.Attempts, 5)

	seen := make(map[int]bool)
	for _, a := range saved.Attempts {
		seen[a.Number] = true
	}
	assert.Len(t, seen, 5, "attempt numbers must be unique")
}

func TestService_SubmitAttempt_RepeatedWord(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	s, err := env.svc.Create(ctx, []string{"Sol", "sol"})
	require.NoError(t, err)

	first, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)
	_, err = env.svc.Confirm(ctx, s.ID, "sol")
	require.NoError(t, err)

	second, err := env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Number)
	assert.Equal(t, 1, second.Number)
	assert.Equal(t, s.ID+"/01_sol/attempt_1/word.wav", first.Whole.Key)
	assert.Equal(t, s.ID+"/02_sol/attempt_1/word.wav", second.Whole.Key)
	require.Len(t, first.Letters, 2)
	require.Len(t, second.Letters, 2)
	assert.NotEqual(t, first.Letters[0].Key, second.Letters[0].Key)

	for _, key := range []string{first.Whole.Key, first.Letters[0].Key, second.Whole.Key} {
		rc, err := env.store.Open(ctx, key)
		require.NoError(t, err, key)
		_ = rc.Close()
	}
}

func countLocks(svc *Service) int {
	n := 0
	svc.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func TestService_ReleasesSessionLocks(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		env := newTestEnv(t, nil)
		for i := 0; i < 3; i++ {
			missing := fmt.Sprintf("missing-%d", i)
			_, err := env.svc.SubmitAttempt(ctx, missing, twoBursts())
			assert.ErrorIs(t, err, ErrSessionNotFound)
			_, err = env.svc.Confirm(ctx, missing, "x")
			assert.ErrorIs(t, err, ErrSessionNotFound)
			_, err = env.svc.Abandon(ctx, missing)
			assert.ErrorIs(t, err, ErrSessionNotFound)
		}
		assert.Zero(t, countLocks(env.svc))
	})

	t.Run("completed session", func(t *testing.T) {
		env := newTestEnv(t, nil)
		s, err := env.svc.Create(ctx, []string{"Sol"})
		require.NoError(t, err)

		_, err = env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
		require.NoError(t, err)
		assert.Equal(t, 1, countLocks(env.svc))

		conf, err := env.svc.Confirm(ctx, s.ID, "sol")
		require.NoError(t, err)
		require.True(t, conf.Finished)
		assert.Zero(t, countLocks(env.svc))

		_, err = env.svc.SubmitAttempt(ctx, s.ID, twoBursts())
		assert.ErrorIs(t, err, ErrSessionFinished)
		assert.Zero(t, countLocks(env.svc))
	})

	t.Run("abandoned session", func(t *testing.T) {
		env := newTestEnv(t, nil)
		s, err := env.svc.Create(ctx, nil)
		require.NoError(t, err)

		_, err = env.svc.Abandon(ctx, s.ID)
		require.NoError(t, err)
		assert.Zero(t, countLocks(env.svc))

		_, err = env.svc.Abandon(ctx, s.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Zero(t, countLocks(env.svc))
	})
}
