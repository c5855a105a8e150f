package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snarg/stt-engine/internal/transcribe"
)

// LocalArchive stores transcript JSON on the local filesystem.
type LocalArchive struct {
	dir string
}

// NewLocalArchive creates a local filesystem transcript archive.
func NewLocalArchive(dir string) *LocalArchive {
	return &LocalArchive{dir: dir}
}

func (a *LocalArchive) Store(ctx context.Context, jobID string, res *transcribe.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return a.write(archiveKey(jobID, res.ProcessedAt), data)
}

func (a *LocalArchive) write(key string, data []byte) error {
	path := filepath.Join(a.dir, filepath.FromSlash(key))
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// Atomic write: temp file + rename
	tmp, err := os.CreateTemp(dir, ".transcript-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (a *LocalArchive) URL(ctx context.Context, key string) (string, error) {
	return "", nil
}

func (a *LocalArchive) Exists(ctx context.Context, key string) bool {
	_, err := os.Stat(filepath.Join(a.dir, filepath.FromSlash(key)))
	return err == nil
}

func (a *LocalArchive) Type() string { return "local" }

// Dir returns the archive directory path.
func (a *LocalArchive) Dir() string { return a.dir }
