package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// UnreadableMediaError means a file could not be parsed as media or has no
// audio stream. It is a data problem, never retried.
type UnreadableMediaError struct {
	Path string
	Err  error
}

func (e *UnreadableMediaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unreadable media %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("unreadable media %q", e.Path)
}

func (e *UnreadableMediaError) Unwrap() error { return e.Err }

// Info is the metadata extracted from a media file.
type Info struct {
	DurationSeconds float64 `json:"duration_seconds"`
	ContainerFormat string  `json:"container_format"`
	Codec           string  `json:"codec"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	SizeBytes       int64   `json:"size_bytes"`
}

// ffprobeAvailable caches whether ffprobe is in PATH (checked once at startup).
var ffprobeAvailable *bool

// CheckFFprobe checks if ffprobe is available in PATH. Call once at startup.
func CheckFFprobe() bool {
	if ffprobeAvailable != nil {
		return *ffprobeAvailable
	}
	_, err := exec.LookPath("ffprobe")
	avail := err == nil
	ffprobeAvailable = &avail
	return avail
}

// Probe inspects a media file with ffprobe and returns its audio metadata.
// Pure inspection: the file is never modified and probing the same file twice
// yields the same result. Returns UnreadableMediaError when the file cannot
// be parsed or carries no audio stream.
func Probe(ctx context.Context, path string) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, &UnreadableMediaError{Path: path, Err: err}
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UnreadableMediaError{
			Path: path,
			Err:  fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	return parseProbeOutput(stdout.Bytes(), path, st.Size())
}

// ffprobeOutput mirrors the subset of ffprobe's JSON we consume.
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

func parseProbeOutput(data []byte, path string, sizeBytes int64) (*Info, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &UnreadableMediaError{Path: path, Err: fmt.Errorf("parse ffprobe output: %w", err)}
	}

	info := &Info{
		ContainerFormat: normalizeContainer(out.Format.FormatName, path),
		SizeBytes:       sizeBytes,
	}
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			info.DurationSeconds = d
		}
	}

	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		info.Codec = s.CodecName
		info.Channels = s.Channels
		if s.SampleRate != "" {
			if sr, err := strconv.Atoi(s.SampleRate); err == nil {
				info.SampleRate = sr
			}
		}
		return info, nil
	}

	return nil, &UnreadableMediaError{Path: path, Err: fmt.Errorf("no audio stream")}
}

// normalizeContainer reduces ffprobe's format_name to a single lowercase
// token. ffprobe reports demuxer families like "mov,mp4,m4a,3gp,3g2,mj2";
// when the file extension names a member of the family, the extension wins.
func normalizeContainer(formatName, path string) string {
	formatName = strings.ToLower(formatName)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	if !strings.Contains(formatName, ",") {
		return formatName
	}
	for _, f := range strings.Split(formatName, ",") {
		if f == ext {
			return ext
		}
	}
	first, _, _ := strings.Cut(formatName, ",")
	return first
}
