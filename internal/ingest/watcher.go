package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/engine"
)

// Submitter accepts transcription submissions. Satisfied by *engine.Engine.
type Submitter interface {
	Submit(ctx context.Context, req engine.SubmitRequest) (*engine.Receipt, error)
}

// mediaExtensions are the file types picked up from the spool directory.
var mediaExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".mp4":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
}

// SpoolWatcher monitors a spool directory for new media files and submits
// them for transcription. It is the hands-off ingestion path: drop a file in
// the directory and it gets transcribed.
type SpoolWatcher struct {
	submitter Submitter
	spoolDir  string
	log       zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file and give
	// the writer time to finish.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// Stats
	filesSubmitted atomic.Int64
	filesSkipped   atomic.Int64
	status         atomic.Value // string: "starting", "scanning", "watching", "stopped"
}

// NewSpoolWatcher creates a watcher over spoolDir. Start begins watching.
func NewSpoolWatcher(submitter Submitter, spoolDir string, log zerolog.Logger) *SpoolWatcher {
	w := &SpoolWatcher{
		submitter:      submitter,
		spoolDir:       spoolDir,
		log:            log.With().Str("component", "spool-watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
	w.status.Store("starting")
	return w
}

// Start initializes the fsnotify watcher, adds all existing directories, and
// begins watching for new files. Files already in the spool are submitted in
// a background scan, oldest first.
func (w *SpoolWatcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw
	w.ctx, w.cancel = context.WithCancel(context.Background())

	dirCount := 0
	err = filepath.WalkDir(w.spoolDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.log.Info().
		Int("directories", dirCount).
		Str("spool_dir", w.spoolDir).
		Msg("spool watcher initialized")

	w.wg.Add(1)
	go w.watchLoop()

	w.wg.Add(1)
	go w.scanExisting()

	return nil
}

// Stop closes the fsnotify watcher and waits for in-flight submissions.
func (w *SpoolWatcher) Stop() {
	w.status.Store("stopped")
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.wg.Wait()
	w.log.Info().
		Int64("files_submitted", w.filesSubmitted.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("spool watcher stopped")
}

// Stats summarizes watcher state for the health endpoint.
type Stats struct {
	Status         string `json:"status"`
	SpoolDir       string `json:"spool_dir"`
	FilesSubmitted int64  `json:"files_submitted"`
	FilesSkipped   int64  `json:"files_skipped"`
}

func (w *SpoolWatcher) Stats() Stats {
	s, _ := w.status.Load().(string)
	return Stats{
		Status:         s,
		SpoolDir:       w.spoolDir,
		FilesSubmitted: w.filesSubmitted.Load(),
		FilesSkipped:   w.filesSkipped.Load(),
	}
}

func (w *SpoolWatcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it to the watch set so files dropped into
			// nested folders are still picked up.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				}
				continue
			}

			if !isMediaFile(event.Name) {
				continue
			}
			w.scheduleSubmit(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleSubmit debounces submission by 500ms. This coalesces rapid
// Create+Write events and ensures the file is fully written before probing.
func (w *SpoolWatcher) scheduleSubmit(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.submit(path)
	})
}

func (w *SpoolWatcher) submit(path string) {
	if w.ctx.Err() != nil {
		return
	}

	rec, err := w.submitter.Submit(w.ctx, engine.SubmitRequest{Path: path})
	if err != nil {
		w.filesSkipped.Add(1)
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			w.log.Warn().Str("path", path).Str("reason", verr.Reason).Msg("spool file rejected")
		} else {
			w.log.Warn().Err(err).Str("path", path).Msg("spool submission failed")
		}
		return
	}

	w.filesSubmitted.Add(1)
	w.log.Info().
		Str("path", path).
		Str("request_id", rec.RequestID).
		Str("provider", rec.Provider).
		Str("status", string(rec.Status)).
		Msg("spool file submitted")
}

// scanExisting submits media files already sitting in the spool when the
// watcher starts, oldest first. Duplicate work is cheap: resubmitted content
// hits the result cache.
func (w *SpoolWatcher) scanExisting() {
	defer w.wg.Done()
	w.status.Store("scanning")

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry

	filepath.WalkDir(w.spoolDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isMediaFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime()})
		return nil
	})

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	if len(files) > 0 {
		w.log.Info().Int("files", len(files)).Msg("submitting existing spool files")
	}
	for _, f := range files {
		select {
		case <-w.ctx.Done():
			w.status.Store("stopped")
			return
		default:
		}
		w.submit(f.path)
	}

	w.status.Store("watching")
}

func isMediaFile(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}
