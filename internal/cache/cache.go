// Package cache stores prior transcription results keyed by content
// fingerprint. The cache is best-effort: backend failures degrade to a miss
// and never fail a request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/snarg/stt-engine/internal/transcribe"
)

// Store is a content-keyed result cache backend.
type Store interface {
	// Get returns the cached result for key, or ok=false on a miss.
	Get(ctx context.Context, key string) (*transcribe.Result, bool, error)

	// Set stores a result under key with the given TTL.
	Set(ctx context.Context, key string, res *transcribe.Result, ttl time.Duration) error

	// Ping reports backend reachability for the health endpoint.
	Ping(ctx context.Context) error

	// Type returns "memory" or "redis".
	Type() string
}

// Key derives the cache key for a file and request shape. The first half
// fingerprints the file bytes, so identical audio maps to the same entry
// regardless of filename or path; the second half hashes the provider name
// and options, so different request shapes never collide.
func Key(path, providerName string, opts transcribe.Options) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for fingerprint: %w", err)
	}
	defer f.Close()

	content := sha256.New()
	if _, err := io.Copy(content, f); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	optsJSON, err := json.Marshal(struct {
		Provider string             `json:"provider"`
		Options  transcribe.Options `json:"options"`
	}{providerName, opts})
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}
	shape := sha256.Sum256(optsJSON)

	return hex.EncodeToString(content.Sum(nil)) + ":" + hex.EncodeToString(shape[:8]), nil
}
