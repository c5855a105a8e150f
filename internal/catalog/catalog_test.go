package catalog

import (
	"errors"
	"testing"
)

func TestGet(t *testing.T) {
	c := Default()

	d, err := c.Get("whisper")
	if err != nil {
		t.Fatalf("Get(whisper): %v", err)
	}
	if d.Name != "whisper" {
		t.Errorf("Name = %q, want whisper", d.Name)
	}
	if d.CostPerMinute <= 0 {
		t.Errorf("CostPerMinute = %f, want > 0", d.CostPerMinute)
	}
}

func TestGetUnknown(t *testing.T) {
	c := Default()
	_, err := c.Get("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nonexistent) = %v, want ErrNotFound", err)
	}
}

func TestAllSorted(t *testing.T) {
	c := Default()
	all := c.All()
	if len(all) < 3 {
		t.Fatalf("All() returned %d providers, want >= 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name >= all[i].Name {
			t.Errorf("All() not sorted: %q before %q", all[i-1].Name, all[i].Name)
		}
	}
}

func TestRestrict(t *testing.T) {
	c := Default().Restrict("whisper", "nonexistent")

	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (unknown names ignored)", c.Len())
	}
	if _, err := c.Get("whisper"); err != nil {
		t.Errorf("Get(whisper): %v", err)
	}
	if _, err := c.Get("elevenlabs"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(elevenlabs) = %v, want ErrNotFound after restriction", err)
	}

	// Selection over the restricted set never picks a dropped provider.
	name, err := c.Select("wav", 1<<20, 30, Criteria{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if name != "whisper" {
		t.Errorf("Select = %q, want whisper", name)
	}
}

func TestSupportsFormat(t *testing.T) {
	d := Descriptor{SupportedFormats: []string{"wav", "mp3"}}
	if !d.SupportsFormat("wav") {
		t.Error("SupportsFormat(wav) = false, want true")
	}
	if d.SupportsFormat("flac") {
		t.Error("SupportsFormat(flac) = true, want false")
	}
}

func TestTierOrdering(t *testing.T) {
	if !(TierBasic < TierGood && TierGood < TierVeryGood && TierVeryGood < TierExcellent) {
		t.Error("tier ordering broken")
	}
}

func TestTierString(t *testing.T) {
	cases := map[Tier]string{
		TierBasic:     "basic",
		TierGood:      "good",
		TierVeryGood:  "very_good",
		TierExcellent: "excellent",
		Tier(0):       "unknown",
	}
	for tier, want := range cases {
		if got := tier.String(); got != want {
			t.Errorf("Tier(%d).String() = %q, want %q", tier, got, want)
		}
	}
}
