package media

import (
	"errors"
	"testing"
)

const sampleProbeJSON = `{
	"streams": [
		{
			"codec_type": "video",
			"codec_name": "h264"
		},
		{
			"codec_type": "audio",
			"codec_name": "aac",
			"sample_rate": "44100",
			"channels": 2
		}
	],
	"format": {
		"format_name": "mov,mp4,m4a,3gp,3g2,mj2",
		"duration": "45.217000"
	}
}`

func TestParseProbeOutput(t *testing.T) {
	info, err := parseProbeOutput([]byte(sampleProbeJSON), "/media/clip.mp4", 1234)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.DurationSeconds != 45.217 {
		t.Errorf("DurationSeconds = %f, want 45.217", info.DurationSeconds)
	}
	if info.ContainerFormat != "mp4" {
		t.Errorf("ContainerFormat = %q, want mp4", info.ContainerFormat)
	}
	if info.Codec != "aac" {
		t.Errorf("Codec = %q, want aac", info.Codec)
	}
	if info.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", info.SampleRate)
	}
	if info.Channels != 2 {
		t.Errorf("Channels = %d, want 2", info.Channels)
	}
	if info.SizeBytes != 1234 {
		t.Errorf("SizeBytes = %d, want 1234", info.SizeBytes)
	}
}

func TestParseProbeOutputNoAudioStream(t *testing.T) {
	data := `{
		"streams": [{"codec_type": "video", "codec_name": "h264"}],
		"format": {"format_name": "matroska,webm", "duration": "10.0"}
	}`
	_, err := parseProbeOutput([]byte(data), "/media/silent.mkv", 100)
	var ume *UnreadableMediaError
	if !errors.As(err, &ume) {
		t.Fatalf("err = %v, want *UnreadableMediaError", err)
	}
}

func TestParseProbeOutputGarbage(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json"), "/media/x", 0)
	var ume *UnreadableMediaError
	if !errors.As(err, &ume) {
		t.Fatalf("err = %v, want *UnreadableMediaError", err)
	}
}

func TestNormalizeContainer(t *testing.T) {
	cases := []struct {
		formatName string
		path       string
		want       string
	}{
		{"wav", "/a/b.wav", "wav"},
		{"mp3", "/a/b.mp3", "mp3"},
		{"mov,mp4,m4a,3gp,3g2,mj2", "/a/b.m4a", "m4a"},
		{"mov,mp4,m4a,3gp,3g2,mj2", "/a/b.mp4", "mp4"},
		{"mov,mp4,m4a,3gp,3g2,mj2", "/a/b.unknown", "mov"},
		{"matroska,webm", "/a/b.webm", "webm"},
		{"ogg", "/a/b.OGG", "ogg"},
	}
	for _, tc := range cases {
		if got := normalizeContainer(tc.formatName, tc.path); got != tc.want {
			t.Errorf("normalizeContainer(%q, %q) = %q, want %q", tc.formatName, tc.path, got, tc.want)
		}
	}
}
