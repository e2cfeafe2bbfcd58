package feed

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit markers the feed abbreviates large counts with: 만 is ten-thousands,
// 천 is thousands.
const (
	unitTenThousand = "만"
	unitThousand    = "천"
)

var leadingNumberPattern = regexp.MustCompile(`[\d.]+`)

// parseCount normalizes a localized, possibly abbreviated count string to a
// non-negative integer. "17.4만" -> 174000, "1.2천" -> 1200, "4,346" -> 4346.
// Malformed text yields ok=false, never zero: a missing count and a zero
// count are different observations.
func parseCount(text string) (int64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	// Grouping separators and stray spaces carry no information.
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")

	multiplier := 1.0
	switch {
	case strings.Contains(s, unitTenThousand):
		multiplier = 10000
	case strings.Contains(s, unitThousand):
		multiplier = 1000
	}

	match := leadingNumberPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	// Truncation matches the feed's own rounding of abbreviated counts.
	n := int64(num * multiplier)
	if n < 0 {
		return 0, false
	}
	return n, true
}
