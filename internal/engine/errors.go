package engine

import (
	"errors"

	"github.com/snarg/stt-engine/internal/media"
	"github.com/snarg/stt-engine/internal/transcribe"
)

// ErrKind classifies terminal job failures for callers and metrics.
type ErrKind string

const (
	ErrKindValidation      ErrKind = "validation"
	ErrKindNoProvider      ErrKind = "no_suitable_provider"
	ErrKindUnreadableMedia ErrKind = "unreadable_media"
	ErrKindPreprocessing   ErrKind = "preprocessing_failed"
	ErrKindProvider        ErrKind = "provider_error"
	ErrKindTimeout         ErrKind = "timeout"
)

// ValidationError rejects a submission before a job is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ErrUnknownRequest is returned by GetStatus for request IDs the engine has
// never seen or has already evicted.
var ErrUnknownRequest = errors.New("unknown request id")

// classifyKind maps an error from the processing pipeline to its caller-facing
// kind.
func classifyKind(err error) ErrKind {
	var unreadable *media.UnreadableMediaError
	if errors.As(err, &unreadable) {
		return ErrKindUnreadableMedia
	}
	var pre *media.PreprocessError
	if errors.As(err, &pre) {
		return ErrKindPreprocessing
	}
	var prov *transcribe.ProviderError
	if errors.As(err, &prov) {
		return ErrKindProvider
	}
	return ErrKindProvider
}
