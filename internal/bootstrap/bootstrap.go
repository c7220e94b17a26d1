// Package bootstrap provides dependency initialization for the practice
// server and the console recorder.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/maauso/palabra/internal/audio"
	"github.com/maauso/palabra/internal/config"
	"github.com/maauso/palabra/internal/denoise"
	"github.com/maauso/palabra/internal/metrics"
	"github.com/maauso/palabra/internal/practice"
	"github.com/maauso/palabra/internal/recognize"
	"github.com/maauso/palabra/internal/storage"
	"github.com/maauso/palabra/internal/words"
)

// Version is reported in telemetry.
var Version = "dev"

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	Service *practice.Service
	Storage storage.Storage

	pool *pgxpool.Pool
	mp   *sdkmetric.MeterProvider
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if err := cfg.SegmentParams().Validate(cfg.SampleRate); err != nil {
		return nil, fmt.Errorf("segmentation settings: %w", err)
	}

	deps := &Dependencies{}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	deps.Storage = store

	repo, err := deps.initRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	list, err := initWords(cfg)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	ff := audio.NewFFmpeg(cfg.FFmpegPath)
	encoder, err := audio.NewEncoder(cfg.ExportOpts(), ff)
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("create encoder: %w", err)
	}

	reducer, err := initReducer(cfg)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	recognizer, err := initRecognizer(cfg)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	deps.mp, err = metrics.InitProvider(ctx, metrics.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("init meter provider: %w", err)
	}
	met, err := metrics.New(deps.mp)
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	deps.Service, err = practice.NewService(practice.Deps{
		Repo:       repo,
		Storage:    store,
		Encoder:    encoder,
		Decoder:    audio.NewFileDecoder(ff, cfg.SampleRate),
		Reducer:    reducer,
		Recognizer: recognizer,
		Metrics:    met,
		Logger:     logger,
	}, practice.Config{
		Words:                list,
		Params:               cfg.SegmentParams(),
		GainDB:               cfg.GainDB,
		MaxConcurrentExports: cfg.MaxConcurrentExports,
	})
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("create practice service: %w", err)
	}

	logger.Info("practice service configured",
		slog.String("language", list.Language),
		slog.Int("words", len(list.Words)),
		slog.String("export_format", string(encoder.Format())),
		slog.Bool("denoise", cfg.DenoiseEnabled),
		slog.String("recognizer", cfg.Recognizer),
	)
	return deps, nil
}

// Close releases the database pool and flushes metrics.
func (d *Dependencies) Close(ctx context.Context) {
	if d.pool != nil {
		d.pool.Close()
	}
	if d.mp != nil {
		if err := d.mp.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("failed to shut down meter provider", slog.String("error", err.Error()))
		}
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Prefix:          cfg.S3Prefix,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("prefix", cfg.S3Prefix),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
		slog.String("archive_dir", localStore.ArchiveDir()),
	)
	return localStore, nil
}

// initRepository connects to PostgreSQL when DATABASE_URL is set and
// falls back to the in-memory repository otherwise.
func (d *Dependencies) initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (practice.Repository, error) {
	if !cfg.PostgresEnabled() {
		logger.Info("in-memory session repository configured")
		return practice.NewMemoryRepository(), nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := practice.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	d.pool = pool

	logger.Info("postgres session repository configured")
	return repo, nil
}

func initWords(cfg *config.Config) (words.List, error) {
	if cfg.WordsFile != "" {
		list, err := words.Load(cfg.WordsFile)
		if err != nil {
			return words.List{}, fmt.Errorf("load word list: %w", err)
		}
		return list, nil
	}

	list := words.Default()
	if cfg.Language != "" {
		list.Language = cfg.Language
	}
	return list, nil
}

func initReducer(cfg *config.Config) (denoise.Reducer, error) {
	if !cfg.DenoiseEnabled {
		return denoise.Passthrough{}, nil
	}
	gate, err := denoise.NewSpectralGate(denoise.DefaultGateOpts())
	if err != nil {
		return nil, fmt.Errorf("create noise reducer: %w", err)
	}
	return gate, nil
}

func initRecognizer(cfg *config.Config) (recognize.Recognizer, error) {
	switch cfg.Recognizer {
	case config.RecognizerOpenAI:
		var opts []recognize.OpenAIOption
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, recognize.WithBaseURL(cfg.OpenAIBaseURL))
		}
		r, err := recognize.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai recognizer: %w", err)
		}
		return r, nil
	case config.RecognizerWhisper:
		r, err := recognize.NewWhisperClient(cfg.WhisperURL)
		if err != nil {
			return nil, fmt.Errorf("create whisper recognizer: %w", err)
		}
		return r, nil
	default:
		return nil, nil
	}
}
