package catalog

import (
	"errors"
	"fmt"
)

// ErrNoSuitableProvider is returned when no catalog entry can handle a file.
var ErrNoSuitableProvider = errors.New("no suitable provider")

// longMediaSeconds is the duration above which selection optimizes for cost
// instead of quality. Below it the cost difference is negligible and accuracy
// wins.
const longMediaSeconds = 600

// Criteria narrows provider selection beyond file characteristics.
// Zero values impose no constraint.
type Criteria struct {
	RequiredFeatures []string
	MaxCostPerMinute float64
	MinQuality       Tier
}

// Select picks a provider for a file. Candidates must accept the file's
// container format, its size, and satisfy the caller criteria. An empty
// format imposes no format constraint, which is what pre-probe cost
// estimates use. For media
// longer than longMediaSeconds the cheapest candidate wins (ties broken by
// name ascending); otherwise the highest quality tier wins (ties broken by
// lowest cost, then name).
//
// Selection is pure: the same catalog and arguments always yield the same
// provider.
func (c *Catalog) Select(format string, sizeBytes int64, durationSeconds float64, crit Criteria) (string, error) {
	var candidates []Descriptor
	for _, d := range c.All() {
		if d.MaxFileSizeBytes < sizeBytes {
			continue
		}
		if format != "" && !d.SupportsFormat(format) {
			continue
		}
		if crit.MaxCostPerMinute > 0 && d.CostPerMinute > crit.MaxCostPerMinute {
			continue
		}
		if crit.MinQuality > 0 && d.Quality < crit.MinQuality {
			continue
		}
		if !hasAllFeatures(d, crit.RequiredFeatures) {
			continue
		}
		candidates = append(candidates, d)
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: format=%q size=%d", ErrNoSuitableProvider, format, sizeBytes)
	}

	best := candidates[0]
	for _, d := range candidates[1:] {
		if durationSeconds > longMediaSeconds {
			if d.CostPerMinute < best.CostPerMinute ||
				(d.CostPerMinute == best.CostPerMinute && d.Name < best.Name) {
				best = d
			}
			continue
		}
		if d.Quality > best.Quality ||
			(d.Quality == best.Quality && d.CostPerMinute < best.CostPerMinute) ||
			(d.Quality == best.Quality && d.CostPerMinute == best.CostPerMinute && d.Name < best.Name) {
			best = d
		}
	}
	return best.Name, nil
}

func hasAllFeatures(d Descriptor, features []string) bool {
	for _, f := range features {
		if !d.HasFeature(f) {
			return false
		}
	}
	return true
}
