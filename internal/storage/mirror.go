package storage

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/transcribe"
)

// MirrorArchive writes transcripts to local disk first (fatal on failure),
// then to S3 (warning on failure). Local disk is the source of truth; S3 is
// the durable copy the pruner trusts before deleting anything local.
type MirrorArchive struct {
	local *LocalArchive
	s3    *S3Archive
	log   zerolog.Logger
}

// NewMirrorArchive creates a local-primary + S3-mirror archive.
func NewMirrorArchive(local *LocalArchive, s3 *S3Archive, log zerolog.Logger) *MirrorArchive {
	return &MirrorArchive{
		local: local,
		s3:    s3,
		log:   log.With().Str("component", "mirror-archive").Logger(),
	}
}

func (m *MirrorArchive) Store(ctx context.Context, jobID string, res *transcribe.Result) error {
	if err := m.local.Store(ctx, jobID, res); err != nil {
		return err
	}
	if err := m.s3.Store(ctx, jobID, res); err != nil {
		m.log.Warn().Err(err).Str("job_id", jobID).Msg("S3 mirror write failed")
	}
	return nil
}

func (m *MirrorArchive) URL(ctx context.Context, key string) (string, error) {
	return m.s3.URL(ctx, key)
}

func (m *MirrorArchive) Exists(ctx context.Context, key string) bool {
	if m.local.Exists(ctx, key) {
		return true
	}
	return m.s3.Exists(ctx, key)
}

func (m *MirrorArchive) Type() string { return "mirror" }
