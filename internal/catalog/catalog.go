package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned when a provider name is not in the catalog.
var ErrNotFound = errors.New("provider not found")

// Tier is a provider quality tier. Higher is better.
type Tier int

const (
	TierBasic Tier = iota + 1
	TierGood
	TierVeryGood
	TierExcellent
)

func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "basic"
	case TierGood:
		return "good"
	case TierVeryGood:
		return "very_good"
	case TierExcellent:
		return "excellent"
	default:
		return "unknown"
	}
}

// Descriptor describes one speech-to-text provider. Descriptors are immutable
// after catalog construction and shared read-only by the selector and the
// cost calculator.
type Descriptor struct {
	Name             string   `json:"name"`
	CostPerMinute    float64  `json:"cost_per_minute"` // USD
	MaxFileSizeBytes int64    `json:"max_file_size_bytes"`
	SupportedFormats []string `json:"supported_formats"` // container formats, lowercase
	Features         []string `json:"features"`
	Quality          Tier     `json:"quality_tier"`
}

// SupportsFormat reports whether the provider accepts the given container format.
func (d Descriptor) SupportsFormat(format string) bool {
	for _, f := range d.SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// HasFeature reports whether the provider advertises the given feature.
func (d Descriptor) HasFeature(feature string) bool {
	for _, f := range d.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Catalog is a read-only registry of provider descriptors, loaded once at startup.
type Catalog struct {
	providers map[string]Descriptor
}

// New builds a catalog from the given descriptors. Later duplicates win.
func New(descriptors ...Descriptor) *Catalog {
	m := make(map[string]Descriptor, len(descriptors))
	for _, d := range descriptors {
		m[d.Name] = d
	}
	return &Catalog{providers: m}
}

// Default returns the built-in provider catalog.
func Default() *Catalog {
	return New(
		Descriptor{
			Name:             "whisper",
			CostPerMinute:    0.0040,
			MaxFileSizeBytes: 25 * 1024 * 1024,
			SupportedFormats: []string{"wav", "mp3", "m4a", "flac", "ogg", "webm"},
			Features:         []string{"timestamps", "word_timestamps", "language_detection"},
			Quality:          TierGood,
		},
		Descriptor{
			Name:             "deepinfra",
			CostPerMinute:    0.0006,
			MaxFileSizeBytes: 200 * 1024 * 1024,
			SupportedFormats: []string{"wav", "mp3", "m4a", "flac", "ogg", "webm"},
			Features:         []string{"timestamps", "word_timestamps", "language_detection"},
			Quality:          TierVeryGood,
		},
		Descriptor{
			Name:             "elevenlabs",
			CostPerMinute:    0.0067,
			MaxFileSizeBytes: 1024 * 1024 * 1024,
			SupportedFormats: []string{"wav", "mp3", "m4a", "flac", "ogg", "webm", "mp4"},
			Features:         []string{"timestamps", "word_timestamps", "language_detection", "diarization"},
			Quality:          TierExcellent,
		},
	)
}

// Restrict returns a catalog containing only the named providers. Names with
// no descriptor are ignored. The scheduler restricts its catalog to the
// providers it has adapters for, so selection never routes to a provider that
// cannot run.
func (c *Catalog) Restrict(names ...string) *Catalog {
	m := make(map[string]Descriptor, len(names))
	for _, name := range names {
		if d, ok := c.providers[name]; ok {
			m[name] = d
		}
	}
	return &Catalog{providers: m}
}

// Len returns the number of providers in the catalog.
func (c *Catalog) Len() int { return len(c.providers) }

// Get returns the descriptor for a provider name.
func (c *Catalog) Get(name string) (Descriptor, error) {
	d, ok := c.providers[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return d, nil
}

// All returns every descriptor, sorted by name.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, 0, len(c.providers))
	for _, d := range c.providers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
