package recognize

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is the transcription model used when none is given.
const DefaultOpenAIModel = "whisper-1"

// OpenAI transcribes clips with the OpenAI audio API or any server that
// implements it.
type OpenAI struct {
	client oai.Client
	model  string
}

// openAIConfig holds optional configuration for the OpenAI recognizer.
type openAIConfig struct {
	baseURL string
	timeout time.Duration
}

// OpenAIOption is a functional option for OpenAI.
type OpenAIOption func(*openAIConfig)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) {
		c.timeout = d
	}
}

// NewOpenAI constructs an OpenAI recognizer.
// If model is empty, DefaultOpenAIModel is used.
func NewOpenAI(apiKey, model string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAI{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Transcribe implements Recognizer.
func (o *OpenAI) Transcribe(ctx context.Context, clip Clip) (string, error) {
	if len(clip.Data) == 0 {
		return "", ErrEmptyClip
	}

	contentType := mime.TypeByExtension(filepath.Ext(clip.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(clip.Data), clip.Name, contentType),
		Model: oai.AudioModel(o.model),
	}
	if clip.Language != "" {
		params.Language = oai.String(clip.Language)
	}

	res, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}
	return cleanTranscript(res.Text), nil
}

var _ Recognizer = (*OpenAI)(nil)
