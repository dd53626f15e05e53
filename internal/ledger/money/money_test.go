package money

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Amount
	}{
		{"0", 0},
		{"1", 100},
		{"100.00", 10000},
		{"100.5", 10050},
		{"100.55", 10055},
		{"-0.01", -1},
		{"-150.00", -15000},
		{"0.10", 10},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{
		"", "-", ".", "1.", ".5", "1.234", "1,00", "1e2", "+1", "abc", "10 0", "--1", "1.-1", "0x10",
	} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Parse(%q): expected ErrInvalidAmount, got %v", in, err)
		}
	}
}

func TestParseRejectsOutOfRangeAmounts(t *testing.T) {
	// Largest representable values in signed 64-bit minor units.
	for _, in := range []string{"92233720368547758.07", "-92233720368547758.08"} {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if Format(got) != in {
			t.Fatalf("Parse(%q) = %d, round trips to %q", in, got, Format(got))
		}
	}
	// One paisa past either bound must be rejected, not wrapped.
	for _, in := range []string{
		"92233720368547758.08",
		"92233720368547758.09",
		"-92233720368547758.09",
		"184467440737095516.17",
		"999999999999999999999999",
	} {
		got, err := Parse(in)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Parse(%q) = %d, expected ErrInvalidAmount, got %v", in, got, err)
		}
	}
}

func TestFormatRoundTrips(t *testing.T) {
	for _, a := range []Amount{0, 1, -1, 100, 10055, -15000, 999999999} {
		got, err := Parse(Format(a))
		if err != nil {
			t.Fatalf("Parse(Format(%d)): %v", a, err)
		}
		if got != a {
			t.Fatalf("round trip %d -> %q -> %d", a, Format(a), got)
		}
	}
	if s := Format(-1); s != "-0.01" {
		t.Fatalf("Format(-1) = %q", s)
	}
	if s := Format(10050); s != "100.50" {
		t.Fatalf("Format(10050) = %q", s)
	}
}

func TestNegate(t *testing.T) {
	got, err := Negate("100.50")
	if err != nil {
		t.Fatalf("negate: %v", err)
	}
	if got != "-100.50" {
		t.Fatalf("Negate(100.50) = %q", got)
	}
	got, err = Negate("-0.01")
	if err != nil {
		t.Fatalf("negate: %v", err)
	}
	if got != "0.01" {
		t.Fatalf("Negate(-0.01) = %q", got)
	}
}
