package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/snarg/stt-engine/internal/catalog"
)

// PreprocessError means a transcode failed. The source file is untouched and
// the job is not retried.
type PreprocessError struct {
	Path string
	Err  error
}

func (e *PreprocessError) Error() string {
	return fmt.Sprintf("preprocessing failed for %q: %v", e.Path, e.Err)
}

func (e *PreprocessError) Unwrap() error { return e.Err }

// ffmpegAvailable caches whether ffmpeg is in PATH (checked once at startup).
var ffmpegAvailable *bool

// CheckFFmpeg checks if ffmpeg is available in PATH. Call once at startup.
func CheckFFmpeg() bool {
	if ffmpegAvailable != nil {
		return *ffmpegAvailable
	}
	_, err := exec.LookPath("ffmpeg")
	avail := err == nil
	ffmpegAvailable = &avail
	return avail
}

// EnsureCompatible returns a path whose container format the provider
// accepts. When the source format is already supported the original path
// comes back unchanged with a no-op cleanup. Otherwise the file is
// transcoded to the provider's first supported format with a fixed
// normalization profile (mono, 16kHz, speech bitrate) into a temporary file;
// the returned cleanup removes it and the caller must run it after use.
func EnsureCompatible(ctx context.Context, path string, info *Info, desc catalog.Descriptor) (string, func(), error) {
	noop := func() {}

	if desc.SupportsFormat(info.ContainerFormat) {
		return path, noop, nil
	}
	if len(desc.SupportedFormats) == 0 {
		return "", noop, &PreprocessError{Path: path, Err: fmt.Errorf("provider %q accepts no formats", desc.Name)}
	}

	target := desc.SupportedFormats[0]
	tmp, err := os.CreateTemp("", "stt-engine-transcode-*."+target)
	if err != nil {
		return "", noop, &PreprocessError{Path: path, Err: err}
	}
	outPath := tmp.Name()
	tmp.Close()

	args := transcodeArgs(path, outPath, target)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		if ctx.Err() != nil {
			return "", noop, ctx.Err()
		}
		return "", noop, &PreprocessError{
			Path: path,
			Err:  fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String())),
		}
	}

	cleanup := func() { os.Remove(outPath) }
	return outPath, cleanup, nil
}

// transcodeArgs builds the ffmpeg invocation for the normalization profile:
// audio only, mono, 16kHz, codec chosen by target container.
func transcodeArgs(inPath, outPath, target string) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
	}
	switch target {
	case "wav":
		args = append(args, "-c:a", "pcm_s16le")
	case "mp3":
		args = append(args, "-c:a", "libmp3lame", "-b:a", "48k")
	case "ogg":
		args = append(args, "-c:a", "libvorbis", "-b:a", "48k")
	case "m4a":
		args = append(args, "-c:a", "aac", "-b:a", "48k")
	case "flac":
		args = append(args, "-c:a", "flac")
	}
	return append(args, outPath)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	return s
}
