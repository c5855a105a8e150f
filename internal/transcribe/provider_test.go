package transcribe

import (
	"errors"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable provider error", &ProviderError{Provider: "x", Retryable: true}, true},
		{"fatal provider error", &ProviderError{Provider: "x", Retryable: false}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetryableStatus(t *testing.T) {
	cases := map[int]bool{
		408: true,
		429: true,
		500: true,
		502: true,
		503: true,
		400: false,
		401: false,
		403: false,
		404: false,
		413: false,
	}
	for code, want := range cases {
		if got := retryableStatus(code); got != want {
			t.Errorf("retryableStatus(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestSegmentsFromWords(t *testing.T) {
	words := []elevenlabsWord{
		{Text: "Hello", Type: "word", StartTimeMs: 0, EndTimeMs: 400},
		{Text: " ", Type: "spacing", StartTimeMs: 400, EndTimeMs: 450},
		{Text: "there.", Type: "word", StartTimeMs: 450, EndTimeMs: 900},
		{Text: "Bye", Type: "word", StartTimeMs: 1200, EndTimeMs: 1500},
	}
	segs := segmentsFromWords(words)
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2", len(segs))
	}
	if segs[0].Text != "Hello there." {
		t.Errorf("segment 0 text = %q", segs[0].Text)
	}
	if segs[0].Start != 0 || segs[0].End != 0.9 {
		t.Errorf("segment 0 span = [%f, %f]", segs[0].Start, segs[0].End)
	}
	if segs[1].Text != "Bye" {
		t.Errorf("segment 1 text = %q", segs[1].Text)
	}
}

func TestSegmentsFromWordsGapSplit(t *testing.T) {
	words := []elevenlabsWord{
		{Text: "one", Type: "word", StartTimeMs: 0, EndTimeMs: 500},
		{Text: "two", Type: "word", StartTimeMs: 2000, EndTimeMs: 2500}, // >1s gap
	}
	segs := segmentsFromWords(words)
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2 (split on silence gap)", len(segs))
	}
}

func TestAPIErrorTruncatesBody(t *testing.T) {
	body := make([]byte, 2048)
	for i := range body {
		body[i] = 'x'
	}
	pe := apiError("whisper", 500, body)
	if len(pe.Message) > 512 {
		t.Errorf("message length = %d, want <= 512", len(pe.Message))
	}
}
