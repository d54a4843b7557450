package builtin

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order by ParseYear.
var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"2006-01",
	"2006",
}

// ParseDate parses s with the first matching layout in dateLayouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseYear extracts the four-digit year of a date string. Dates that do not
// parse, or whose year is outside 1000..9999, report ok=false.
func ParseYear(s string) (year int, ok bool) {
	t, ok := ParseDate(s)
	if !ok {
		return 0, false
	}
	y := t.Year()
	if y < 1000 || y > 9999 {
		return 0, false
	}
	return y, true
}

// ParseFloat parses a decimal number, rejecting NaN and infinities.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FormatFloat renders f in the shortest form that round-trips, without an
// exponent (30000000, not 3e+07).
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
