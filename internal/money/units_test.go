package money_test

import (
	"testing"

	"RainyDayLedger/internal/money"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"50", 50_000_000},
		{"50.25", 50_250_000},
		{"0.000001", 1},
		{"2000", 2_000_000_000},
		{"0", 0},
		{".5", 500_000},
	}

	for _, tc := range cases {
		got, err := money.ParseAmount(tc.in)
		if err != nil {
			t.Errorf("ParseAmount(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q): got %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "-5", "abc", "1.2345678", "1.2.3", "."} {
		if _, err := money.ParseAmount(in); err == nil {
			t.Errorf("ParseAmount(%q) should fail", in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{50_000_000, "50"},
		{50_250_000, "50.25"},
		{1, "0.000001"},
		{0, "0"},
		{-2_500_000, "-2.5"},
	}

	for _, tc := range cases {
		if got := money.FormatAmount(tc.in); got != tc.want {
			t.Errorf("FormatAmount(%d): got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFromTokens(t *testing.T) {
	if money.FromTokens(50) != 50_000_000 {
		t.Errorf("FromTokens(50): got %d", money.FromTokens(50))
	}
}
