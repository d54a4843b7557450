package transformer

import (
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompilePlan_CoercesNamedColumns(t *testing.T) {
	t.Parallel()

	cols := []string{"id", "title", "budget", "year", "untouched"}
	p := CompileCoerce(cols, CoerceSpec{Types: map[string]string{
		"title":  "text",
		"budget": "float",
		"year":   "year",
	}})

	r := GetRow(len(cols))
	defer r.Free()
	r.V[0] = "862"
	r.V[1] = "  Toy Story "
	r.V[2] = "30000000"
	r.V[3] = "1995-10-30"
	r.V[4] = " raw "

	if failed := p.Apply(r); failed != 0 {
		t.Fatalf("failed=%d want 0", failed)
	}

	want := []any{
		"862",
		"Toy Story",
		sql.NullFloat64{Float64: 3e7, Valid: true},
		sql.NullInt64{Int64: 1995, Valid: true},
		" raw ",
	}
	if diff := cmp.Diff(want, r.V); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestCompilePlan_BadValuesBecomeInvalid(t *testing.T) {
	t.Parallel()

	cols := []string{"budget", "year", "title"}
	p := CompileCoerce(cols, CoerceSpec{Types: map[string]string{"budget": "float", "year": "year", "title": "mystery"}})

	r := GetRow(len(cols))
	defer r.Free()
	r.V[0] = "/ff9qCepilowshEtG2GYWwzt2bs4.jpg"
	r.V[1] = "not a date"
	r.V[2] = ""

	if failed := p.Apply(r); failed != 2 {
		t.Fatalf("failed=%d want 2", failed)
	}
	if r.V[0] != (sql.NullFloat64{}) {
		t.Fatalf("budget=%#v want invalid", r.V[0])
	}
	if r.V[1] != (sql.NullInt64{}) {
		t.Fatalf("year=%#v want invalid", r.V[1])
	}
	if r.V[2] != nil {
		t.Fatalf("empty text should coerce to nil, got %#v", r.V[2])
	}
}

func TestRow_PoolResetsValues(t *testing.T) {
	r := GetRow(3)
	r.V[0], r.V[1], r.V[2] = "a", "b", "c"
	r.Line = 9
	r.Free()

	r2 := GetRow(2)
	defer r2.Free()
	if len(r2.V) != 2 || r2.V[0] != nil || r2.V[1] != nil || r2.Line != 0 {
		t.Fatalf("pooled row not reset: %+v", r2)
	}
	if r2.String(0) != "" || r2.String(5) != "" {
		t.Fatalf("String on nil/out-of-range should be empty")
	}
	r2.V[1] = "x"
	if r2.String(1) != "x" {
		t.Fatalf("String(1)=%q", r2.String(1))
	}
}
