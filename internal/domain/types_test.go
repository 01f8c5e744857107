package domain

import "testing"

func TestZeroValues(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Date.IsZero() {
		t.Error("expected zero Date for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.Volume != 0 {
		t.Error("expected zero Volume for zero-value Bar")
	}

	// Verify a zero Result is empty.
	res := Result{}
	if !res.IsEmpty() {
		t.Error("expected zero-value Result to be empty")
	}
	if EmptyResult().Provenance != ProvenanceEmpty {
		t.Errorf("EmptyResult provenance = %q, want %q", EmptyResult().Provenance, ProvenanceEmpty)
	}
}

func TestParseWindow(t *testing.T) {
	cases := []struct {
		label string
		want  Window
		ok    bool
	}{
		{"1mo", Win1Mo, true},
		{"1y", Win1Y, true},
		{"max", WinMax, true},
		{"7w", Win1Y, false},
		{"", Win1Y, false},
	}
	for _, c := range cases {
		got, ok := ParseWindow(c.label)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseWindow(%q) = (%v, %v), want (%v, %v)", c.label, got, ok, c.want, c.ok)
		}
	}
}

func TestWindowDays(t *testing.T) {
	if d := Win1Y.Days(); d != 365 {
		t.Errorf("Win1Y.Days() = %d, want 365", d)
	}
	if !WinMax.IsMax() {
		t.Error("WinMax.IsMax() = false, want true")
	}
	if d := WinMax.Days(); d != 0 {
		t.Errorf("WinMax.Days() = %d, want 0", d)
	}
}

func TestNewsID(t *testing.T) {
	a := NewsID("AAPL", "https://example.com/a", "Apple beats estimates")
	b := NewsID("AAPL", "https://example.com/a", "Apple beats estimates")
	c := NewsID("AAPL", "https://example.com/b", "Apple beats estimates")

	if a != b {
		t.Error("identical inputs should hash to the same id")
	}
	if a == c {
		t.Error("different links should hash to different ids")
	}
	if len(a) != 32 {
		t.Errorf("id length = %d, want 32 hex chars", len(a))
	}
}
