// Package listfield parses the list-of-records columns found in the movie
// metadata export, e.g.
//
//	[{'id': 16, 'name': 'Animation'}, {'id': 35, 'name': 'Comedy'}]
//
// The export writes them with single quotes, which is not JSON. Parse swaps
// every single quote for a double quote and then decodes strictly. Anything
// that still fails to decode yields an empty list: malformed list fields are
// routine in this dataset and are dropped silently.
package listfield

import (
	stdjson "encoding/json"
	"errors"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// Parse repairs and decodes one list field.
//
// raw may be a string, a []byte, or nil. The result is never nil. Elements
// that are JSON objects are returned as maps with numbers kept as json.Number;
// any other element is returned as a nil map so the caller can reject it.
//
// Nothing is recovered from a partially valid field: if decoding fails
// anywhere, or the top-level value is not an array, or trailing data follows
// the array, the result is empty.
func Parse(raw any) []map[string]any {
	s := text(raw)
	if strings.TrimSpace(s) == "" {
		return []map[string]any{}
	}

	items, err := decode(strings.ReplaceAll(s, "'", `"`))
	if err != nil {
		return []map[string]any{}
	}

	out := make([]map[string]any, len(items))
	for i, it := range items {
		if m, ok := it.(map[string]any); ok {
			out[i] = m
		}
	}
	return out
}

var (
	errTrailingData = errors.New("listfield: trailing data after array")
	errInvalid      = errors.New("listfield: invalid JSON")
)

func decode(s string) ([]any, error) {
	// goccy accepts leading zeros and raw control characters in strings.
	if !stdjson.Valid([]byte(s)) {
		return nil, errInvalid
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	if items == nil {
		// top-level null
		return nil, errors.New("listfield: not an array")
	}

	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return items, nil
}

func text(raw any) string {
	switch t := raw.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
