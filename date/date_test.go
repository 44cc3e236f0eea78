package date

import (
	"encoding/json"
	"testing"
	"time"
)

// TestTime asserts that time() is canonical and gives comparable times.
func TestTime(t *testing.T) {
	d1 := New(2025, 7, 31)
	d2 := New(2025, 7, 31)

	if d1.time() != d2.time() {
		t.Errorf("invalid time() function same day gives two different time")
	}
}

func TestParseAny(t *testing.T) {
	want := New(2025, time.September, 19)
	for _, in := range []string{
		"2025-09-19",
		"2025-9-19",
		"09/19/2025",
		"9/19/2025",
		"09/19/25",
		"20250919",
		"19SEP25",
		"19Sep25",
		"2025/09/19",
		"2025-09-19 00:00:00",
		"2025-09-19T00:00:00Z",
	} {
		t.Run(in, func(t *testing.T) {
			got, err := ParseAny(in)
			if err != nil {
				t.Fatalf("ParseAny(%q) unexpected error: %v", in, err)
			}
			if got != want {
				t.Errorf("ParseAny(%q) = %v, want %v", in, got, want)
			}
		})
	}

	if _, err := ParseAny("next friday"); err == nil {
		t.Errorf("ParseAny(%q) expected an error", "next friday")
	}
}

func TestCompare(t *testing.T) {
	a := New(2025, 7, 18)
	b := New(2025, 7, 19)
	if !a.Before(b) || a.After(b) {
		t.Errorf("%v should be before %v", a, b)
	}
	if a.Compare(a) != 0 {
		t.Errorf("%v.Compare(itself) = %d, want 0", a, a.Compare(a))
	}
	var zero Date
	if !zero.Before(a) {
		t.Errorf("zero date should sort before %v", a)
	}
	if New(2025, 12, 32) != New(2026, 1, 1) {
		t.Errorf("New() is not normalized")
	}
}

func TestJSON(t *testing.T) {
	d := New(2025, 7, 1)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"2025-07-01"` {
		t.Errorf("json.Marshal() = %s, want %s", b, `"2025-07-01"`)
	}
	var got Date
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Errorf("json.Unmarshal() = %v, want %v", got, d)
	}
	if err := json.Unmarshal([]byte(`""`), &got); err != nil || !got.IsZero() {
		t.Errorf("empty string should decode to the zero date, got %v (%v)", got, err)
	}
}
