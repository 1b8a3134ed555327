// Package money handles base-unit amounts of the 6-decimal stable token.
// All arithmetic in the system runs on int64 base units; decimal strings
// appear only at the API boundary.
package money

import (
	"fmt"
	"math"
	"strings"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

// TokenConfig is the precision of the stable token (USDC-style 6 decimals)
var TokenConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}

// FromTokens converts whole tokens to base units
func FromTokens(tokens int64) int64 {
	return tokens * TokenConfig.Scale
}

// ParseAmount converts a decimal string ("50", "50.25") to base units.
// Rejects negatives, malformed input and more than 6 fractional digits.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("amount %q is negative", s)
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}

	if whole == "" && frac == "" {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	if len(frac) > TokenConfig.DecimalPrecision {
		return 0, fmt.Errorf("amount %q exceeds %d decimal places", s, TokenConfig.DecimalPrecision)
	}

	var units int64
	for _, c := range whole {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("malformed amount %q", s)
		}
		digit := int64(c - '0')
		if units > (math.MaxInt64-digit)/10 {
			return 0, fmt.Errorf("amount %q overflows", s)
		}
		units = units*10 + digit
	}

	if units > math.MaxInt64/TokenConfig.Scale {
		return 0, fmt.Errorf("amount %q overflows", s)
	}
	units *= TokenConfig.Scale

	scale := TokenConfig.Scale / 10
	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("malformed amount %q", s)
		}
		units += int64(c-'0') * scale
		scale /= 10
	}

	return units, nil
}

// FormatAmount renders base units as a decimal string with trailing
// zeros trimmed ("50", "50.25").
func FormatAmount(units int64) string {
	neg := units < 0
	if neg {
		units = -units
	}

	whole := units / TokenConfig.Scale
	frac := units % TokenConfig.Scale

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	fmt.Fprintf(&b, "%d", whole)

	if frac > 0 {
		fracStr := fmt.Sprintf("%0*d", TokenConfig.DecimalPrecision, frac)
		fracStr = strings.TrimRight(fracStr, "0")
		b.WriteByte('.')
		b.WriteString(fracStr)
	}

	return b.String()
}
