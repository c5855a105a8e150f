package pricing

import (
	"math"

	"github.com/snarg/stt-engine/internal/catalog"
)

// creditsPerUSD converts monetary cost into the platform billing unit.
const creditsPerUSD = 1000

// Calculator converts media duration and provider rates into monetary and
// credit cost. It holds a read-only catalog reference and has no other state.
type Calculator struct {
	catalog *catalog.Catalog
}

func NewCalculator(c *catalog.Catalog) *Calculator {
	return &Calculator{catalog: c}
}

// Estimate returns the USD cost of transcribing durationSeconds of audio with
// the named provider. Duration is billed in whole minutes, rounded up.
// The only failure mode is an unknown provider name.
func (c *Calculator) Estimate(durationSeconds float64, providerName string) (float64, error) {
	d, err := c.catalog.Get(providerName)
	if err != nil {
		return 0, err
	}
	return float64(BilledMinutes(durationSeconds)) * d.CostPerMinute, nil
}

// BilledMinutes rounds a duration up to whole minutes.
func BilledMinutes(durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(durationSeconds / 60))
}

// Credits converts a USD cost into integer credits, rounding up. The epsilon
// keeps exact multiples (e.g. 0.004 * 1000) from ceiling to the next credit
// due to binary float representation.
func Credits(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	return int64(math.Ceil(usd*creditsPerUSD - 1e-9))
}
