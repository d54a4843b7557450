// Package transformer holds the row container shared by the CSV reader and the
// normalizer, plus the typed coercion applied when projecting the fact table.
package transformer

import "sync"

// Row is a pooled positional row aligned to a fixed column list.
//
// Ownership contract:
//   - Exactly one goroutine owns a Row at a time.
//   - A Row is handed downstream via a channel (ownership transfer).
//   - The final consumer calls Free() once it no longer reads r.V.
//
// On cancellation paths use Drop() instead of Free(): a row returned to the
// pool may be handed out again while a draining stage still reads it.
type Row struct {
	V    []any
	Line int // 1-based physical line where the record started, if known
}

var rowPool sync.Pool

// GetRow returns a pooled Row with len(V) == colCount and every element nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without returning it to the pool.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}

// String returns the string form of column i, or "" when the value is
// nil or i is out of range.
func (r *Row) String(i int) string {
	if i < 0 || i >= len(r.V) {
		return ""
	}
	switch t := r.V[i].(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
