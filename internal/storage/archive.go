package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/config"
	"github.com/snarg/stt-engine/internal/transcribe"
)

// Archive persists completed transcripts as JSON documents, keyed by
// {YYYY-MM-DD}/{job_id}.json.
type Archive interface {
	// Store writes a transcript record.
	Store(ctx context.Context, jobID string, res *transcribe.Result) error

	// URL returns a presigned URL for a stored transcript.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Exists checks whether a transcript is stored in any backend.
	Exists(ctx context.Context, key string) bool

	// Type returns "local", "s3", or "mirror".
	Type() string
}

// New creates an Archive based on config. Returns the archive and optional
// background services (pruner) that the caller must Start/Stop.
// Returns an error if S3 is configured but unreachable.
func New(cfg *config.Config, log zerolog.Logger) (Archive, []BackgroundService, error) {
	local := NewLocalArchive(cfg.ArchiveDir)
	if !cfg.S3.Enabled() {
		return local, nil, nil
	}

	s3a, err := NewS3Archive(cfg.S3, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3a.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.S3.Bucket, cfg.S3.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.S3.Bucket).Str("endpoint", cfg.S3.Endpoint).Msg("S3 connection verified")

	mirror := NewMirrorArchive(local, s3a, log)

	var services []BackgroundService
	if cfg.S3.ArchiveMaxDays > 0 {
		retention := time.Duration(cfg.S3.ArchiveMaxDays) * 24 * time.Hour
		services = append(services, NewPruner(cfg.ArchiveDir, retention, s3a, log))
	}
	return mirror, services, nil
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// archiveKey derives the object key for a transcript from its processing time.
func archiveKey(jobID string, processedAt time.Time) string {
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	return processedAt.UTC().Format("2006-01-02") + "/" + jobID + ".json"
}
