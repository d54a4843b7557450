package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeKey converts a key value to a canonical string form, suitable for
// in-memory dedup sets and log lines (e.g. "862" or "tt0114709").
//
// Whole floats render without a fraction so 862 and 862.0 collide.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
