package multitable

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"movieetl/internal/parser/listfield"
	"movieetl/internal/storage"
	"movieetl/internal/transformer"
	"movieetl/internal/transformer/builtin"
)

// Source column names, in the order rows are aligned to.
const (
	ColID                  = "id"
	ColTitle               = "title"
	ColReleaseDate         = "release_date"
	ColBudget              = "budget"
	ColRevenue             = "revenue"
	ColPopularity          = "popularity"
	ColGenres              = "genres"
	ColProductionCompanies = "production_companies"
)

// SourceColumns is the column set the CSV reader aligns rows to. Every other
// source column is skipped.
var SourceColumns = []string{
	ColID, ColTitle, ColReleaseDate, ColBudget, ColRevenue, ColPopularity,
	ColGenres, ColProductionCompanies,
}

// Tables is the accumulated state of one run: one registry and one bridge per
// embedded list field. The Engine owns it; the Normalizer writes into it.
type Tables struct {
	Genres         *Registry
	Companies      *Registry
	MovieGenres    *Bridge
	MovieCompanies *Bridge
}

func NewTables() *Tables {
	return &Tables{
		Genres:         NewRegistry(),
		Companies:      NewRegistry(),
		MovieGenres:    NewBridge(),
		MovieCompanies: NewBridge(),
	}
}

// ListField binds an embedded list column to the tables it feeds.
type ListField struct {
	Column   string
	Entities *Registry
	Links    *Bridge
}

// ListFields returns the list columns processed per row, in processing order.
func (t *Tables) ListFields() []ListField {
	return []ListField{
		{Column: ColGenres, Entities: t.Genres, Links: t.MovieGenres},
		{Column: ColProductionCompanies, Entities: t.Companies, Links: t.MovieCompanies},
	}
}

type fieldPlan struct {
	ListField
	index int
}

// Normalizer explodes the embedded list fields of one row into Tables.
type Normalizer struct {
	idIndex int
	fields  []fieldPlan
}

// NewNormalizer compiles column positions for rows aligned to columns.
func NewNormalizer(columns []string, tables *Tables) (*Normalizer, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}

	id, ok := idx[ColID]
	if !ok {
		return nil, fmt.Errorf("normalizer: column %q not in row layout", ColID)
	}
	n := &Normalizer{idIndex: id}
	for _, f := range tables.ListFields() {
		i, ok := idx[f.Column]
		if !ok {
			return nil, fmt.Errorf("normalizer: column %q not in row layout", f.Column)
		}
		n.fields = append(n.fields, fieldPlan{ListField: f, index: i})
	}
	return n, nil
}

// RecordID returns the primary identifier of r, or "" when absent.
func (n *Normalizer) RecordID(r *transformer.Row) string {
	if n.idIndex >= len(r.V) {
		return ""
	}
	return storage.NormalizeKey(r.V[n.idIndex])
}

// Normalize registers the entities and associations of r.
//
// Processing of a field stops at its first element that is not an {id, name}
// object; the other fields of the row still run. Every failure comes back as a
// *RowError naming the record.
func (n *Normalizer) Normalize(r *transformer.Row) (err error) {
	id := n.RecordID(r)
	defer func() {
		if p := recover(); p != nil {
			err = &RowError{RecordID: id, Line: r.Line, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if id == "" {
		return &RowError{Line: r.Line, Err: ErrMissingID}
	}

	var errs []error
	for _, f := range n.fields {
		var raw any
		if f.index < len(r.V) {
			raw = r.V[f.index]
		}
		if ferr := f.apply(id, raw); ferr != nil {
			errs = append(errs, ferr)
		}
	}
	if len(errs) > 0 {
		return &RowError{RecordID: id, Line: r.Line, Err: errors.Join(errs...)}
	}
	return nil
}

// apply registers elements in order and stops at the first malformed one.
// Elements before it stay registered.
func (f fieldPlan) apply(recordID string, raw any) error {
	for i, it := range listfield.Parse(raw) {
		if it == nil {
			return &FieldShapeError{Field: f.Column, Index: i, Reason: "element is not an object"}
		}
		rawID, ok := it["id"]
		if !ok {
			return &FieldShapeError{Field: f.Column, Index: i, Reason: `missing key "id"`}
		}
		rawName, ok := it["name"]
		if !ok {
			return &FieldShapeError{Field: f.Column, Index: i, Reason: `missing key "name"`}
		}
		eid, err := entityID(rawID)
		if err != nil {
			return &FieldShapeError{Field: f.Column, Index: i, Reason: err.Error()}
		}
		name, err := entityName(rawName)
		if err != nil {
			return &FieldShapeError{Field: f.Column, Index: i, Reason: err.Error()}
		}
		f.Entities.Record(eid, name)
		f.Links.Record(recordID, eid)
	}
	return nil
}

func entityID(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		if fl, err := t.Float64(); err == nil {
			return integral(fl, t.String())
		}
		return 0, fmt.Errorf("id %q is not an integer", t.String())
	case float64:
		return integral(t, strconv.FormatFloat(t, 'f', -1, 64))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("id %q is not an integer", t)
		}
		return n, nil
	case nil:
		return 0, errors.New("id is null")
	default:
		return 0, fmt.Errorf("id has unexpected type %T", v)
	}
}

func integral(f float64, text string) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("id %q is not an integer", text)
	}
	return int64(f), nil
}

func entityName(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return builtin.NormalizeName(t), nil
	case json.Number:
		return t.String(), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("name has unexpected type %T", v)
	}
}
