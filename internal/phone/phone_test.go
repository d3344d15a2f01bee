package phone

import (
	"errors"
	"testing"
)

func TestNormalizeLocalNumber(t *testing.T) {
	got, err := Normalize("9876543210", "91")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+919876543210" {
		t.Fatalf("expected +919876543210, got %s", got)
	}
}

func TestNormalizeFormattedInput(t *testing.T) {
	cases := map[string]string{
		"+91 98765 43210": "+919876543210",
		"91-9876543210":   "+919876543210",
		"(987) 654-3210":  "+919876543210",
		"09876543210":     "+919876543210",
	}
	for raw, want := range cases {
		got, err := Normalize(raw, "91")
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("Normalize(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize("9876543210", "91")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Normalize(first, "91")
	if err != nil {
		t.Fatalf("re-normalizing canonical number failed: %v", err)
	}
	if first != second {
		t.Fatalf("normalization not idempotent: %s != %s", first, second)
	}
}

func TestNormalizeUSCountryCode(t *testing.T) {
	got, err := Normalize("5551234567", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+15551234567" {
		t.Fatalf("expected +15551234567, got %s", got)
	}
	if again, err := Normalize("+1 555 123 4567", "1"); err != nil || again != got {
		t.Fatalf("prefixed US number should normalize to %s, got %s (%v)", got, again, err)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "abc", "123", "+", "98765"} {
		if _, err := Normalize(raw, "91"); err == nil {
			t.Fatalf("expected rejection for %q", raw)
		}
	}

	if _, err := Normalize("", "91"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty input should yield ErrEmpty, got %v", err)
	}
	if _, err := Normalize("123", "91"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("short input should yield ErrInvalid, got %v", err)
	}
}

func TestNormalizeAllSplitsValidAndRejected(t *testing.T) {
	valid, rejected := NormalizeAll([]string{"9876543210", "+919876543211", "invalid"}, "91")

	if len(valid) != 2 {
		t.Fatalf("expected 2 valid numbers, got %d", len(valid))
	}
	if valid[0] != "+919876543210" || valid[1] != "+919876543211" {
		t.Fatalf("unexpected canonical set: %v", valid)
	}
	if len(rejected) != 1 || rejected[0].Raw != "invalid" {
		t.Fatalf("unexpected rejections: %v", rejected)
	}
}

func TestNormalizeAllDropsDuplicates(t *testing.T) {
	valid, rejected := NormalizeAll([]string{"9876543210", "+91 9876543210"}, "91")
	if len(valid) != 1 {
		t.Fatalf("duplicate canonical numbers should collapse, got %v", valid)
	}
	if len(rejected) != 0 {
		t.Fatalf("no rejections expected, got %v", rejected)
	}
}
