package practice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/palabra/internal/audio"
	"github.com/maauso/palabra/internal/denoise"
	"github.com/maauso/palabra/internal/metrics"
	"github.com/maauso/palabra/internal/practice/id"
	"github.com/maauso/palabra/internal/recognize"
	"github.com/maauso/palabra/internal/segment"
	"github.com/maauso/palabra/internal/storage"
	"github.com/maauso/palabra/internal/words"
)

// exportHeadroomDB is how far below full scale exported clips peak before
// the configured gain is applied.
const exportHeadroomDB = 0.1

// Static errors for the service.
var (
	// ErrInvalidAudio is returned when a recording cannot be used.
	ErrInvalidAudio = errors.New("invalid audio")
	// ErrNothingToConfirm is returned when a confirmation has neither typed
	// text nor a transcript to compare.
	ErrNothingToConfirm = errors.New("nothing to confirm")
	// ErrMissingDependency is returned by NewService when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("missing dependency")
)

// Decoder turns an uploaded file into a mono Buffer.
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (audio.Buffer, error)
}

// Deps are the collaborators of the Service. Reducer, Recognizer and
// Metrics are optional.
type Deps struct {
	Repo       Repository
	Storage    storage.Storage
	Encoder    audio.Encoder
	Decoder    Decoder
	Reducer    denoise.Reducer
	Recognizer recognize.Recognizer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Config holds the tunables of the Service.
type Config struct {
	// Words is the list used when a session is created without its own.
	Words words.List
	// Params are the segmentation tunables.
	Params segment.Params
	// GainDB is applied to every exported clip after normalization.
	GainDB float64
	// MaxConcurrentExports limits parallel clip encodes and uploads.
	MaxConcurrentExports int
}

// Service runs practice sessions: it turns recordings into archived clips
// and checks confirmations against the current word.
type Service struct {
	repo       Repository
	store      storage.Storage
	encoder    audio.Encoder
	decoder    Decoder
	reducer    denoise.Reducer
	recognizer recognize.Recognizer
	metrics    *metrics.Metrics
	logger     *slog.Logger

	words                words.List
	params               segment.Params
	gainDB               float64
	maxConcurrentExports int

	// locks serializes read-modify-write cycles per session.
	locks sync.Map
}

// NewService creates a Service. Repo, Storage and Encoder are required;
// a nil Reducer disables noise reduction. Zero-valued Config fields take
// their defaults.
func NewService(deps Deps, cfg Config) (*Service, error) {
	if deps.Repo == nil || deps.Storage == nil || deps.Encoder == nil {
		return nil, fmt.Errorf("%w: repository, storage and encoder are required", ErrMissingDependency)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Reducer == nil {
		deps.Reducer = denoise.Passthrough{}
	}
	if len(cfg.Words.Words) == 0 {
		cfg.Words = words.Default()
	}
	if cfg.Params == (segment.Params{}) {
		cfg.Params = segment.DefaultParams()
	}
	if cfg.MaxConcurrentExports <= 0 {
		cfg.MaxConcurrentExports = 4
	}

	return &Service{
		repo:                 deps.Repo,
		store:                deps.Storage,
		encoder:              deps.Encoder,
		decoder:              deps.Decoder,
		reducer:              deps.Reducer,
		recognizer:           deps.Recognizer,
		metrics:              deps.Metrics,
		logger:               deps.Logger,
		words:                cfg.Words,
		params:               cfg.Params,
		gainDB:               cfg.GainDB,
		maxConcurrentExports: cfg.MaxConcurrentExports,
	}, nil
}

// Words returns the default word list.
func (s *Service) Words() words.List {
	return s.words
}

// lock acquires the per-session mutex and returns its release function.
func (s *Service) lock(sessionID string) func() {
	v, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// release drops the mutex of a session that no longer accepts changes.
// Unknown and finished sessions reject every mutation, so a caller still
// holding the old mutex cannot race a new one.
func (s *Service) release(sessionID string) {
	s.locks.Delete(sessionID)
}

// findLocked loads a session under its lock, releasing the lock entry when
// the session does not exist.
func (s *Service) findLocked(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		s.release(sessionID)
	}
	return session, err
}

// Create starts a session over list, or over the default list when list
// is empty.
func (s *Service) Create(ctx context.Context, list []string) (*Session, error) {
	wl := s.words
	if len(list) > 0 {
		var err error
		if wl, err = words.New(s.words.Language, list); err != nil {
			return nil, err
		}
	}

	session, err := NewSession(wl.Language, wl.Words)
	if err != nil {
		return nil, err
	}

	s.logger.Info("creating practice session",
		slog.String("session_id", session.ID),
		slog.Int("words", len(session.Words)),
		slog.String("language", session.Language),
	)

	if err := s.repo.Save(ctx, session); err != nil {
		s.logger.Error("failed to save session",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return session, nil
}

// Get retrieves a session by ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.repo.FindByID(ctx, sessionID)
}

// List returns every session, oldest first.
func (s *Service) List(ctx context.Context) ([]*Session, error) {
	return s.repo.List(ctx)
}

// Delete removes a session record. Archived clips are kept.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	unlock := s.lock(sessionID)
	defer unlock()
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.release(sessionID)
	return nil
}

// Abandon stops a session before its last word.
func (s *Service) Abandon(ctx context.Context, sessionID string) (*Session, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.findLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Abandon(); err != nil {
		s.release(sessionID)
		return nil, fmt.Errorf("%w: session is %s", err, session.GetStatus())
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	s.release(sessionID)
	s.logger.Info("session abandoned", slog.String("session_id", sessionID))
	return session, nil
}

// SubmitUpload stages an uploaded file, decodes it and submits it as an
// attempt. The staged file is always removed.
func (s *Service) SubmitUpload(ctx context.Context, sessionID, name string, data io.Reader) (*Attempt, error) {
	if s.decoder == nil {
		return nil, fmt.Errorf("%w: no decoder configured", ErrMissingDependency)
	}

	staged, err := s.store.SaveTemp(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	defer func() {
		if err := s.store.CleanupTemp(context.WithoutCancel(ctx), []string{staged}); err != nil {
			s.logger.Warn("failed to clean up upload", slog.String("path", staged), slog.String("error", err.Error()))
		}
	}()

	buf, err := s.decoder.DecodeFile(ctx, staged)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}
	return s.SubmitAttempt(ctx, sessionID, buf)
}

// SubmitAttempt runs one recording of the current word through the
// pipeline: noise reduction, rescaling to full scale, segmentation, clip
// export and optional recognition. The attempt is stored on the session.
// A recording with no letters is not an error.
func (s *Service) SubmitAttempt(ctx context.Context, sessionID string, buf audio.Buffer) (*Attempt, error) {
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidAudio, buf.SampleRate)
	}

	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.findLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	word, ok := session.CurrentWord()
	if !ok {
		s.release(sessionID)
		return nil, ErrSessionFinished
	}

	cleaned, err := s.reducer.Reduce(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("reduce noise: %w", err)
	}
	cleaned = audio.ScaleToPeak(cleaned, 32767)

	start := time.Now()
	res, err := segment.Split(cleaned, s.params)
	if err != nil {
		return nil, fmt.Errorf("segment recording: %w", err)
	}
	s.metrics.RecordSegmentation(ctx, time.Since(start), len(res.Letters), res.Discarded)

	attempt := Attempt{
		ID:          id.Generate(),
		Number:      session.NextAttemptNumber(),
		Word:        word,
		Discarded:   res.Discarded,
		ThresholdDB: res.ThresholdDB,
		CreatedAt:   time.Now(),
	}

	s.logger.Info("recording segmented",
		slog.String("session_id", sessionID),
		slog.String("word", word),
		slog.Int("attempt", attempt.Number),
		slog.Float64("threshold_db", res.ThresholdDB),
		slog.Int("letters", len(res.Letters)),
		slog.Int("discarded", res.Discarded),
	)

	prefix := clipPrefix(sessionID, session.Position(), word, attempt.Number)
	refs, wholeData, err := s.export(ctx, prefix, res)
	if err != nil {
		return nil, err
	}
	attempt.Whole = refs[0]
	attempt.Letters = refs[1:]

	if s.recognizer != nil && res.Whole.Audio.Len() > 0 {
		heard, err := s.recognizer.Transcribe(ctx, recognize.Clip{
			Name:     "word" + s.encoder.Format().Ext(),
			Data:     wholeData,
			Language: session.Language,
		})
		if err != nil {
			s.logger.Warn("recognition failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		} else {
			attempt.Heard = heard
		}
	}

	if err := session.AddAttempt(attempt); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// clipPrefix names the archive directory of one attempt. The word's position
// keeps repeated or normalization-equal words apart.
func clipPrefix(sessionID string, position int, word string, attempt int) string {
	return path.Join(sessionID,
		fmt.Sprintf("%02d_%s", position+1, words.Normalize(word)),
		fmt.Sprintf("attempt_%d", attempt))
}

// export encodes and archives the whole clip and every letter with bounded
// concurrency. refs[0] is the whole clip; the encoded whole clip is
// returned for recognition. An empty whole clip is not archived.
func (s *Service) export(ctx context.Context, prefix string, res segment.Result) ([]ClipRef, []byte, error) {
	clips := append([]segment.Segment{res.Whole}, res.Letters...)
	refs := make([]ClipRef, len(clips))
	var wholeData []byte

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrentExports)

	for i, clip := range clips {
		g.Go(func() error {
			if clip.Audio.Len() == 0 {
				refs[i] = ClipRef{Index: clip.Index}
				return nil
			}
			name := "word"
			if clip.Index > 0 {
				name = fmt.Sprintf("letter_%d", clip.Index)
			}
			key := path.Join(prefix, name+s.encoder.Format().Ext())

			data, location, err := s.exportClip(gctx, key, clip.Audio)
			if err != nil {
				s.metrics.RecordExportFailure(gctx, string(s.encoder.Format()))
				return fmt.Errorf("export %s: %w", key, err)
			}
			if clip.Index == 0 {
				wholeData = data
			}

			sr := clip.Audio.SampleRate
			refs[i] = ClipRef{
				Index:    clip.Index,
				StartMs:  audio.SamplesToDuration(clip.Interval.Start, sr).Milliseconds(),
				EndMs:    audio.SamplesToDuration(clip.Interval.End, sr).Milliseconds(),
				Key:      key,
				Location: location,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("clip export failed", slog.String("prefix", prefix), slog.String("error", err.Error()))
		return nil, nil, err
	}

	s.logger.Debug("clips exported", slog.String("prefix", prefix), slog.Int("clips", len(refs)))
	return refs, wholeData, nil
}

func (s *Service) exportClip(ctx context.Context, key string, clip audio.Buffer) ([]byte, string, error) {
	processed := audio.Gain(audio.Normalize(clip, exportHeadroomDB), s.gainDB)

	var encoded bytes.Buffer
	if err := s.encoder.Encode(ctx, &encoded, processed); err != nil {
		return nil, "", err
	}
	data := encoded.Bytes()

	location, err := s.store.Archive(ctx, key, bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	return data, location, nil
}

// Confirmation is the outcome of checking an answer against the current word.
type Confirmation struct {
	// Match is the comparison result.
	Match words.Match
	// Source is "typed" or "heard".
	Source string
	// Result is set when the word was confirmed.
	Result *WordResult
	// NextWord is the word to practise next, empty when finished.
	NextWord string
	// Finished is true once the session completed.
	Finished bool
}

// Confirm compares text against the current word. An empty text falls back
// to the transcript of the latest attempt. On an exact match the word is
// recorded with its attempt count and the session advances.
func (s *Service) Confirm(ctx context.Context, sessionID, text string) (*Confirmation, error) {
	unlock := s.lock(sessionID)
	defer unlock()

	session, err := s.findLocked(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	word, ok := session.CurrentWord()
	if !ok {
		s.release(sessionID)
		return nil, ErrSessionFinished
	}
	last, ok := session.LastAttempt()
	if !ok {
		return nil, ErrNoAttempt
	}

	source := "typed"
	if text == "" {
		text, source = last.Heard, "heard"
	}
	if text == "" {
		return nil, ErrNothingToConfirm
	}

	conf := &Confirmation{Match: words.Compare(word, text), Source: source}
	s.metrics.RecordAttempt(ctx, conf.Match.Exact)

	if !conf.Match.Exact {
		s.logger.Info("word not confirmed",
			slog.String("session_id", sessionID),
			slog.String("expected", conf.Match.Expected),
			slog.String("got", conf.Match.Got),
			slog.Float64("similarity", conf.Match.Similarity),
		)
		conf.NextWord = word
		return conf, nil
	}

	result, err := session.ConfirmCurrent()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, err
	}

	conf.Result = &result
	conf.NextWord, _ = session.CurrentWord()
	conf.Finished = session.GetStatus() == StatusCompleted
	if conf.Finished {
		s.release(sessionID)
	}

	s.logger.Info("word confirmed",
		slog.String("session_id", sessionID),
		slog.String("word", result.Word),
		slog.Int("attempts", result.Attempts),
		slog.Bool("finished", conf.Finished),
	)
	return conf, nil
}

// Summary lists the attempts each confirmed word needed.
type Summary struct {
	SessionID     string       `json:"session_id"`
	Status        Status       `json:"status"`
	Results       []WordResult `json:"results"`
	Remaining     []string     `json:"remaining"`
	TotalAttempts int          `json:"total_attempts"`
}

// Summarize builds the summary of a session.
func (s *Service) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return NewSummary(session), nil
}

// NewSummary builds the summary of session.
func NewSummary(session *Session) *Summary {
	snap := session.Clone()
	sum := &Summary{
		SessionID:     snap.ID,
		Status:        snap.Status,
		Results:       snap.Results,
		Remaining:     append([]string{}, snap.Words[min(snap.Current, len(snap.Words)):]...),
		TotalAttempts: len(snap.Attempts),
	}
	return sum
}

// OpenClip reads an archived clip by key.
func (s *Service) OpenClip(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.store.Open(ctx, key)
}
