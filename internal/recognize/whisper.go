package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Static errors for the whisper server client.
var (
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("whisper: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("whisper: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("whisper: request failed")
)

// WhisperClient transcribes clips with a whisper.cpp HTTP server
// (the /inference endpoint).
type WhisperClient struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// WhisperOption is a function that configures a WhisperClient.
type WhisperOption func(*WhisperClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) WhisperOption {
	return func(wc *WhisperClient) {
		wc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) WhisperOption {
	return func(wc *WhisperClient) {
		wc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) WhisperOption {
	return func(wc *WhisperClient) {
		wc.baseBackoff = d
	}
}

// NewWhisperClient creates a client for the server at baseURL.
func NewWhisperClient(baseURL string, opts ...WhisperOption) (*WhisperClient, error) {
	if baseURL == "" {
		return nil, ErrURLRequired
	}

	c := &WhisperClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  2,
		baseBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe implements Recognizer.
func (c *WhisperClient) Transcribe(ctx context.Context, clip Clip) (string, error) {
	if len(clip.Data) == 0 {
		return "", ErrEmptyClip
	}

	body, contentType, err := inferenceForm(clip)
	if err != nil {
		return "", err
	}

	var resp inferenceResponse
	if err := c.doRequestWithRetry(ctx, c.baseURL+"/inference", body, contentType, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	return cleanTranscript(resp.Text), nil
}

// inferenceForm builds the multipart body the server expects.
func inferenceForm(clip Clip) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", clip.Name)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return nil, "", fmt.Errorf("whisper: write form file: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
		"temperature":     "0.0",
	}
	if clip.Language != "" {
		fields["language"] = clip.Language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("whisper: write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *WhisperClient) doRequestWithRetry(ctx context.Context, url string, body []byte, contentType string, result any) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("whisper: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, url, body, contentType, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("whisper: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *WhisperClient) doRequest(ctx context.Context, url string, body []byte, contentType string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("whisper: request failed: %w", err)
		}
		return &retryableError{err: fmt.Errorf("whisper: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("whisper: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("whisper: unmarshal response: %w", err)
	}
	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ Recognizer = (*WhisperClient)(nil)
