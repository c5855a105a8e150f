package pricing

import (
	"errors"
	"testing"

	"github.com/snarg/stt-engine/internal/catalog"
)

func testCalculator() *Calculator {
	return NewCalculator(catalog.New(
		catalog.Descriptor{Name: "flat", CostPerMinute: 0.004, MaxFileSizeBytes: 1 << 30, SupportedFormats: []string{"wav"}, Quality: catalog.TierGood},
	))
}

func TestEstimateRoundsUpToWholeMinutes(t *testing.T) {
	c := testCalculator()

	cases := []struct {
		seconds float64
		want    float64
	}{
		{45, 0.004},    // under a minute bills one minute
		{60, 0.004},    // exactly one minute
		{61, 0.008},    // spills into the second minute
		{600, 0.040},   // ten minutes
		{0, 0},         // nothing to bill
		{59.99, 0.004}, // fractional seconds round up
	}
	for _, tc := range cases {
		got, err := c.Estimate(tc.seconds, "flat")
		if err != nil {
			t.Fatalf("Estimate(%f): %v", tc.seconds, err)
		}
		if got != tc.want {
			t.Errorf("Estimate(%f) = %f, want %f", tc.seconds, got, tc.want)
		}
	}
}

func TestEstimateUnknownProvider(t *testing.T) {
	c := testCalculator()
	_, err := c.Estimate(60, "nope")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("Estimate(unknown) = %v, want ErrNotFound", err)
	}
}

func TestEstimateMonotonic(t *testing.T) {
	c := testCalculator()
	prev := -1.0
	for sec := 0.0; sec <= 3600; sec += 17 {
		cost, err := c.Estimate(sec, "flat")
		if err != nil {
			t.Fatalf("Estimate(%f): %v", sec, err)
		}
		if cost < prev {
			t.Fatalf("cost decreased: %f seconds -> %f (prev %f)", sec, cost, prev)
		}
		prev = cost
	}
}

func TestBilledMinutes(t *testing.T) {
	cases := []struct {
		seconds float64
		want    int
	}{
		{0, 0},
		{-5, 0},
		{1, 1},
		{60, 1},
		{60.5, 2},
		{119, 2},
		{700, 12},
	}
	for _, tc := range cases {
		if got := BilledMinutes(tc.seconds); got != tc.want {
			t.Errorf("BilledMinutes(%f) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
}

func TestCredits(t *testing.T) {
	cases := []struct {
		usd  float64
		want int64
	}{
		{0, 0},
		{0.004, 4},   // exact multiple must not round up an extra credit
		{0.0041, 5},  // partial credit rounds up
		{1.0, 1000},
		{0.0001, 1},
	}
	for _, tc := range cases {
		if got := Credits(tc.usd); got != tc.want {
			t.Errorf("Credits(%f) = %d, want %d", tc.usd, got, tc.want)
		}
	}
}
