package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider is the interface every speech-to-text backend must satisfy.
// Transcribe must honor ctx cancellation and return within the caller's
// deadline; it never blocks indefinitely.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
	Name() string  // "whisper", "deepinfra", "elevenlabs"
	Model() string // model identifier for logs and archive records
}

// Options are per-request transcription parameters. They participate in the
// content-cache key, so two requests with different options never share a
// cached result.
type Options struct {
	Language    string  `json:"language,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Prompt      string  `json:"prompt,omitempty"`
	Hotwords    string  `json:"hotwords,omitempty"`
}

// Segment is one timed span of transcript text, ordered by start time.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
}

// Result is the normalized transcription outcome from any provider.
// Provider adapters fill the transcript fields; the scheduler fills cost,
// cached flag, and processing timestamp.
type Result struct {
	Text            string    `json:"text"`
	Language        string    `json:"language"`
	DurationSeconds float64   `json:"duration_seconds"`
	Segments        []Segment `json:"segments,omitempty"`
	Confidence      float64   `json:"confidence"` // 0..1, 0 when unknown
	Provider        string    `json:"provider"`
	CostUSD         float64   `json:"cost_usd"`
	Cached          bool      `json:"cached"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// ProviderError is a typed failure from a provider adapter. Retryable marks
// transient conditions (rate limits, server errors, transport failures);
// everything else (bad credentials, rejected payloads) is fatal and must not
// be retried.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 for transport-level failures
	Message    string
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a provider failure worth retrying.
// Context cancellation and deadline expiry are never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// retryableStatus classifies HTTP status codes: throttling and server-side
// errors are transient, client errors are not.
func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// apiError builds a ProviderError from a non-200 API response, truncating
// large bodies so they don't flood logs.
func apiError(provider string, status int, body []byte) *ProviderError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Message:    msg,
		Retryable:  retryableStatus(status),
	}
}

// transportError wraps a request-level failure (connection refused, DNS,
// reset). These are always worth a retry.
func transportError(provider string, err error) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Message:   err.Error(),
		Retryable: true,
		Err:       err,
	}
}
