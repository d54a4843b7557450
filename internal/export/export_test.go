package export

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"movieetl/internal/multitable"
)

func sampleResult() *multitable.Result {
	return &multitable.Result{
		Movies: []multitable.Movie{
			{
				ID: "862", Title: "Toy Story", ReleaseDate: "1995-10-30",
				Budget:     sql.NullFloat64{Float64: 30000000, Valid: true},
				Revenue:    sql.NullFloat64{Float64: 373554033, Valid: true},
				Popularity: sql.NullFloat64{Float64: 21.946943, Valid: true},
				Year:       sql.NullInt64{Int64: 1995, Valid: true},
			},
			{ID: "8844", Title: "Jumanji, the game", ReleaseDate: ""},
		},
		Genres:         []multitable.Entity{{ID: 16, Name: "Animation"}, {ID: 35, Name: "Comedy"}},
		Companies:      []multitable.Entity{{ID: 3, Name: "Pixar"}},
		MovieGenres:    []multitable.Association{{Left: "862", Right: 16}, {Left: "862", Right: 35}},
		MovieCompanies: []multitable.Association{{Left: "862", Right: 3}},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestWriter_Write(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "processed_data")
	if err := PrepareOutputDir(root); err != nil {
		t.Fatalf("PrepareOutputDir: %v", err)
	}

	sum, err := (&Writer{Root: root}).Write(sampleResult())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := map[string]string{
		MoviesFile: "movie_id,title,release_date,budget,revenue,popularity,year\n" +
			"862,Toy Story,1995-10-30,30000000,373554033,21.946943,1995\n" +
			"8844,\"Jumanji, the game\",,,,,\n",
		GenresFile:                   "genre_id,name\n16,Animation\n35,Comedy\n",
		ProductionCompaniesFile:      "company_id,name\n3,Pixar\n",
		MovieGenresFile:              "movie_id,genre_id\n862,16\n862,35\n",
		MovieProductionCompaniesFile: "movie_id,company_id\n862,3\n",
	}
	for file, body := range want {
		if diff := cmp.Diff(body, readFile(t, filepath.Join(root, DataDir, file))); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", file, diff)
		}
	}

	if got := readFile(t, filepath.Join(root, QueryFile)); got != RevenueByGenreByYearSQL {
		t.Fatalf("query file mismatch:\n%q", got)
	}
	if len(sum.Files) != 5 || sum.Files[0].Rows != 2 || sum.QueryPath != filepath.Join(root, QueryFile) {
		t.Fatalf("summary=%+v", sum)
	}
}

func TestWriter_WriteIsByteIdentical(t *testing.T) {
	t.Parallel()

	a, err := (&Writer{Root: t.TempDir()}).Write(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	b, err := (&Writer{Root: t.TempDir()}).Write(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Files {
		if a.Files[i].Checksum != b.Files[i].Checksum {
			t.Fatalf("%s checksum differs between runs", filepath.Base(a.Files[i].Path))
		}
	}
}

func TestRevenueQueryText(t *testing.T) {
	t.Parallel()

	q := RevenueByGenreByYearSQL
	if !strings.HasPrefix(q, "\n            SELECT\n") {
		t.Fatalf("unexpected prefix: %q", q[:30])
	}
	if !strings.HasSuffix(q, "release_year, total_revenue DESC;\n            ") {
		t.Fatalf("unexpected suffix: %q", q[len(q)-50:])
	}
	for _, part := range []string{
		"EXTRACT(YEAR FROM M.release_date) AS release_year",
		"movie_genres MG ON M.movie_id = MG.movie_id",
		"genres G ON MG.genre_id = G.genre_id",
		"GROUP BY\n                release_year, genre_name",
	} {
		if !strings.Contains(q, part) {
			t.Fatalf("query missing %q", part)
		}
	}
}

func TestPrepareOutputDir_RemovesExisting(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	stale := filepath.Join(root, "stale.txt")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := PrepareOutputDir(root); err != nil {
		t.Fatalf("PrepareOutputDir: %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale file survived: %v", err)
	}
	if fi, err := os.Stat(filepath.Join(root, DataDir)); err != nil || !fi.IsDir() {
		t.Fatalf("data dir missing: %v", err)
	}
}

func TestWriter_FatalIOError(t *testing.T) {
	t.Parallel()

	// root is a regular file, so the data directory cannot be created
	root := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(root, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := (&Writer{Root: root}).Write(sampleResult())
	var fe *FatalIOError
	if !errors.As(err, &fe) || fe.Op != "mkdir" {
		t.Fatalf("err=%v want FatalIOError(mkdir)", err)
	}
}
