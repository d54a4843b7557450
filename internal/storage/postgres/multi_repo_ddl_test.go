package postgres

import (
	"strings"
	"testing"

	"movieetl/internal/storage"
)

func TestBuildCreateSQL_QualifiedFactTable(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "analytics.movies",
		PrimaryKey: []string{"movie_id"},
		Columns: []storage.ColumnSpec{
			{Name: "movie_id", Type: storage.TypeText, Size: 64},
			{Name: "title", Type: storage.TypeText, Nullable: storage.Nullable(true)},
			{Name: "release_date", Type: storage.TypeDate, Nullable: storage.Nullable(true)},
			{Name: "revenue", Type: storage.TypeDouble, Nullable: storage.Nullable(true)},
			{Name: "year", Type: storage.TypeInt, Nullable: storage.Nullable(true)},
		},
	}

	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != `CREATE SCHEMA IF NOT EXISTS "analytics";` {
		t.Fatalf("schemaSQL=%q", schemaSQL)
	}
	want := `CREATE TABLE IF NOT EXISTS "analytics"."movies" (` +
		`"movie_id" VARCHAR(64) NOT NULL, "title" TEXT, "release_date" DATE, ` +
		`"revenue" DOUBLE PRECISION, "year" INTEGER, PRIMARY KEY ("movie_id"));`
	if tableSQL != want {
		t.Fatalf("tableSQL mismatch\n got: %s\nwant: %s", tableSQL, want)
	}
}

func TestBuildCreateSQL_BridgeWithReferencesAndUnique(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name: "movie_production_companies",
		Columns: []storage.ColumnSpec{
			{Name: "movie_id", Type: storage.TypeText, Size: 64, References: "movies(movie_id)"},
			{Name: "company_id", Type: storage.TypeBigInt, References: "production_companies(company_id)"},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"movie_id", "company_id"}}},
	}

	schemaSQL, tableSQL, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if schemaSQL != "" {
		t.Fatalf("unexpected schemaSQL for unqualified table: %q", schemaSQL)
	}
	for _, frag := range []string{
		`"company_id" BIGINT NOT NULL REFERENCES production_companies(company_id)`,
		`UNIQUE ("movie_id", "company_id")`,
	} {
		if !strings.Contains(tableSQL, frag) {
			t.Fatalf("tableSQL missing %q: %s", frag, tableSQL)
		}
	}
	if strings.Contains(tableSQL, "PRIMARY KEY") {
		t.Fatalf("no primary key configured: %s", tableSQL)
	}
}

func TestBuildCreateSQL_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]storage.TableSpec{
		"empty name": {Columns: []storage.ColumnSpec{{Name: "a", Type: "text"}}},
		"no columns": {Name: "t"},
		"bad type":   {Name: "t", Columns: []storage.ColumnSpec{{Name: "a", Type: "jsonb"}}},
		"bad constraint": {
			Name:        "t",
			Columns:     []storage.ColumnSpec{{Name: "a", Type: "text"}},
			Constraints: []storage.ConstraintSpec{{Kind: "check", Columns: []string{"a"}}},
		},
	}
	for name, spec := range cases {
		if _, _, err := buildCreateSQL(spec); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestBuildInsertSQL_NoConflict(t *testing.T) {
	t.Parallel()

	sql, args, err := buildInsertSQL(
		"movies",
		[]string{"movie_id", "title", "year"},
		[][]any{
			{"862", "Toy Story", int64(1995)},
			{"8844", "Jumanji", nil},
		},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(sql, "ON CONFLICT") {
		t.Fatalf("expected no ON CONFLICT clause, got: %q", sql)
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
	if !strings.Contains(sql, "VALUES ($1, $2, $3), ($4, $5, $6);") {
		t.Fatalf("unexpected VALUES placeholders: %q", sql)
	}
}

func TestBuildInsertSQL_WithConflict(t *testing.T) {
	t.Parallel()

	sql, _, err := buildInsertSQL(
		"public.movie_genres",
		[]string{"movie_id", "genre_id"},
		[][]any{{"862", int64(16)}, {"862", int64(16)}},
		[]string{"movie_id", "genre_id"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sql, `INSERT INTO "public"."movie_genres" ("movie_id", "genre_id")`) {
		t.Fatalf("unexpected prefix: %q", sql)
	}
	if !strings.HasSuffix(sql, ` ON CONFLICT ("movie_id", "genre_id") DO NOTHING;`) {
		t.Fatalf("expected ON CONFLICT DO NOTHING, got: %q", sql)
	}

	if _, _, err := buildInsertSQL("t", []string{"a", "b"}, [][]any{{1}}, nil); err == nil {
		t.Fatalf("expected ragged row error")
	}
}

func TestChunkRows(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 5)
	got := chunkRows(rows, 2)
	if len(got) != 3 || len(got[0]) != 2 || len(got[2]) != 1 {
		t.Fatalf("chunks=%v", got)
	}
	if len(chunkRows(rows, 0)) != 5 {
		t.Fatalf("per<1 must fall back to single-row chunks")
	}
}

func TestPgIdent(t *testing.T) {
	t.Parallel()

	if got := pgIdent(` we"ird `); got != `"we""ird"` {
		t.Fatalf("pgIdent=%s", got)
	}
	if got := pgTableIdent("a.b.c"); got != `"a.b.c"` {
		t.Fatalf("pgTableIdent=%s", got)
	}
}
