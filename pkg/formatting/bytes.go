// Package formatting converts byte counts to and from human-readable sizes.
// All units are base-1024, so "10MB" is 10 * 1024 * 1024 bytes.
package formatting

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const unitBase = 1024

var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([A-Za-z]*)$`)

// FormatBytes renders n with the largest unit that keeps the value at or above one.
// Negative precision is treated as zero.
func FormatBytes(n int64, precision int) string {
	precision = max(precision, 0)

	if n < unitBase {
		return fmt.Sprintf("%d B", n)
	}

	value := float64(n)
	idx := 0
	for value >= unitBase && idx < len(units)-1 {
		value /= unitBase
		idx++
	}

	return strconv.FormatFloat(value, 'f', precision, 64) + " " + units[idx]
}

// FormatMegabytes renders n in megabytes with two decimals regardless of magnitude.
// Upload limits are communicated in this form.
func FormatMegabytes(n int64) string {
	return fmt.Sprintf("%.2fMB", float64(n)/(unitBase*unitBase))
}

// ParseBytes parses sizes such as "512", "64KB", "10 MB", or "1.5gb".
// A bare number is a byte count.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number: %w", err)
	}

	unit := strings.ToUpper(m[2])
	if unit == "" {
		return int64(value), nil
	}

	exp := slices.Index(units, unit)
	if exp < 0 {
		return 0, fmt.Errorf("unknown byte size unit: %q", m[2])
	}

	for range exp {
		value *= unitBase
	}
	return int64(value), nil
}
