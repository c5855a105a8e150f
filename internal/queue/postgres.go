package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const queueSchema = `
CREATE TABLE IF NOT EXISTS transcription_queue (
    job_id        TEXT PRIMARY KEY,
    priority      INT NOT NULL DEFAULT 0,
    attempt       INT NOT NULL DEFAULT 1,
    enqueued_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    available_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    claimed_until TIMESTAMPTZ,
    payload       JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_transcription_queue_claim
    ON transcription_queue (priority DESC, enqueued_at ASC)
    WHERE claimed_until IS NULL;
`

// PostgresStore is the durable queue backend. Queued jobs survive process
// restarts; claims left behind by a dead worker expire via claimed_until and
// are reaped back into the queue.
type PostgresStore struct {
	pool              *pgxpool.Pool
	visibilityTimeout time.Duration
	log               zerolog.Logger
}

// NewPostgresStore connects to Postgres and ensures the queue schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string, visibilityTimeout time.Duration, log zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, queueSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure queue schema: %w", err)
	}

	if visibilityTimeout <= 0 {
		visibilityTimeout = 35 * time.Minute
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Dur("visibility_timeout", visibilityTimeout).
		Msg("queue store connected")

	return &PostgresStore{
		pool:              pool,
		visibilityTimeout: visibilityTimeout,
		log:               log,
	}, nil
}

func (s *PostgresStore) Enqueue(ctx context.Context, it Item) error {
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}
	if it.AvailableAt.IsZero() {
		it.AvailableAt = it.EnqueuedAt
	}
	if it.Attempt <= 0 {
		it.Attempt = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcription_queue (job_id, priority, attempt, enqueued_at, available_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO NOTHING`,
		it.JobID, it.Priority, it.Attempt, it.EnqueuedAt, it.AvailableAt, it.Payload)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Claim atomically picks and locks the best available row. SKIP LOCKED keeps
// concurrent workers from blocking on the same candidate.
func (s *PostgresStore) Claim(ctx context.Context) (Item, bool, error) {
	var it Item
	err := s.pool.QueryRow(ctx, `
		UPDATE transcription_queue
		SET claimed_until = now() + $1
		WHERE job_id = (
			SELECT job_id FROM transcription_queue
			WHERE claimed_until IS NULL AND available_at <= now()
			ORDER BY priority DESC, enqueued_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id, priority, attempt, enqueued_at, available_at, payload`,
		s.visibilityTimeout,
	).Scan(&it.JobID, &it.Priority, &it.Attempt, &it.EnqueuedAt, &it.AvailableAt, &it.Payload)

	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("claim: %w", err)
	}
	return it, true, nil
}

func (s *PostgresStore) Ack(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM transcription_queue WHERE job_id = $1 AND claimed_until IS NOT NULL`, jobID)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ack: job %q not claimed", jobID)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, jobID string, availableAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transcription_queue
		SET claimed_until = NULL, available_at = $2, attempt = attempt + 1
		WHERE job_id = $1 AND claimed_until IS NOT NULL`,
		jobID, availableAt)
	if err != nil {
		return fmt.Errorf("release: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release: job %q not claimed", jobID)
	}
	return nil
}

func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM transcription_queue WHERE claimed_until IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("len: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ReapExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transcription_queue
		SET claimed_until = NULL, available_at = now()
		WHERE claimed_until IS NOT NULL AND claimed_until < now()`)
	if err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		s.log.Warn().Int("reaped", n).Msg("returned expired claims to queue")
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Type() string { return "postgres" }

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
