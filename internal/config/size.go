package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// sizeUnits maps a lower-cased unit suffix to its byte multiplier. SI units
// are powers of 1000, IEC units powers of 1024.
var sizeUnits = map[string]int64{
	"":    1,
	"b":   1,
	"kb":  1e3,
	"mb":  1e6,
	"gb":  1e9,
	"tb":  1e12,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
}

// ParseSize converts a size such as "10MiB", "320 KiB" or "1.5GB" to bytes.
// Units are case-insensitive; a bare number is bytes and "" is zero.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	split := strings.IndexFunc(s, unicode.IsLetter)
	if split < 0 {
		split = len(s)
	}

	num := strings.TrimSpace(s[:split])
	unit := strings.ToLower(s[split:])

	multiplier, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", s, s[split:])
	}

	if num == "" {
		return 0, fmt.Errorf("invalid size %q: missing number", s)
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	switch {
	case v < 0:
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	case v*float64(multiplier) > math.MaxInt64:
		return 0, fmt.Errorf("invalid size %q: too large", s)
	case multiplier == 1 && v != math.Trunc(v):
		return 0, fmt.Errorf("invalid size %q: fractional bytes", s)
	}

	return int64(v * float64(multiplier)), nil
}
