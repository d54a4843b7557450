package transformer

import (
	"database/sql"
	"strings"

	"movieetl/internal/transformer/builtin"
)

// CoerceSpec maps column names to a target type:
//
//	"text"  - trimmed string, nil when empty
//	"float" - sql.NullFloat64, invalid when unparseable
//	"year"  - sql.NullInt64 holding the year of a date string, invalid when unparseable
//
// Columns not named in Types are passed through untouched.
type CoerceSpec struct {
	Types map[string]string
}

type coerceFn func(dst *any, raw any) bool

type coerceCol struct {
	index  int
	coerce coerceFn
}

// CoercePlan is a CoerceSpec compiled against a column list so per-row work is
// index based.
type CoercePlan struct {
	cols []coerceCol
}

// CompileCoerce compiles spec for columns. Unknown type names fall back to
// "text".
func CompileCoerce(columns []string, spec CoerceSpec) CoercePlan {
	return compilePlan(columns, spec)
}

func compilePlan(columns []string, spec CoerceSpec) CoercePlan {
	var p CoercePlan
	for i, c := range columns {
		typ, ok := spec.Types[c]
		if !ok {
			continue
		}
		p.cols = append(p.cols, coerceCol{index: i, coerce: coercerFor(typ)})
	}
	return p
}

func coercerFor(typ string) coerceFn {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "float", "double", "numeric":
		return coerceFloat
	case "year":
		return coerceYear
	default:
		return coerceText
	}
}

// Apply coerces the planned columns of r in place. It returns the number of
// non-empty values that failed to coerce.
func (p CoercePlan) Apply(r *Row) (failed int) {
	for _, c := range p.cols {
		if c.index >= len(r.V) {
			continue
		}
		var dst any
		if !c.coerce(&dst, r.V[c.index]) {
			failed++
		}
		r.V[c.index] = dst
	}
	return failed
}

func rawString(raw any) string {
	switch t := raw.(type) {
	case string:
		if builtin.HasEdgeSpace(t) {
			return strings.TrimSpace(t)
		}
		return t
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return ""
	}
}

func coerceText(dst *any, raw any) bool {
	s := rawString(raw)
	if s == "" {
		*dst = nil
		return true
	}
	*dst = s
	return true
}

func coerceFloat(dst *any, raw any) bool {
	s := rawString(raw)
	if s == "" {
		*dst = sql.NullFloat64{}
		return true
	}
	f, ok := builtin.ParseFloat(s)
	*dst = sql.NullFloat64{Float64: f, Valid: ok}
	return ok
}

func coerceYear(dst *any, raw any) bool {
	s := rawString(raw)
	if s == "" {
		*dst = sql.NullInt64{}
		return true
	}
	y, ok := builtin.ParseYear(s)
	*dst = sql.NullInt64{Int64: int64(y), Valid: ok}
	return ok
}
