package multitable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"movieetl/internal/transformer"
)

type recLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *recLogger) matching(prefix string) []string {
	var out []string
	for _, s := range l.lines {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

func feed(rows ...*transformer.Row) <-chan *transformer.Row {
	ch := make(chan *transformer.Row, len(rows))
	for _, r := range rows {
		ch <- r
	}
	close(ch)
	return ch
}

func TestEngine_Run(t *testing.T) {
	t.Parallel()

	log := &recLogger{}
	e := &Engine{Job: "test", Logger: log}

	res, err := e.Run(context.Background(), feed(
		sourceRow(2, map[string]string{
			ColID: "862", ColTitle: "Toy Story", ColReleaseDate: "1995-10-30",
			ColBudget: "30000000", ColRevenue: "373554033.0", ColPopularity: "21.946943",
			ColGenres:              "[{'id': 16, 'name': 'Animation'}, {'id': 35, 'name': 'Comedy'}]",
			ColProductionCompanies: "[{'name': 'Pixar Animation Studios', 'id': 3}]",
		}),
		sourceRow(3, map[string]string{
			ColID: "8844", ColTitle: "Jumanji", ColReleaseDate: "not a date",
			ColBudget: "/ff9qCepilowshEtG2GYWwzt2bs4.jpg",
			ColGenres:              "[{'id': 12, 'name': 'Adventure'}, {'id': 16, 'name': 'Cartoons'}]",
			ColProductionCompanies: "[{id: 559, name: TriStar}]",
		}),
		// duplicate fact row: dropped from movies but still normalized
		sourceRow(4, map[string]string{
			ColID: "862", ColTitle: "Toy Story (copy)", ColReleaseDate: "2001-01-01",
			ColGenres: "[{'id': 10751, 'name': 'Family'}, {'id': 16, 'name': 'Animation'}]",
		}),
		sourceRow(5, map[string]string{
			ColTitle:  "No Id",
			ColGenres: "[{'id': 99, 'name': 'Documentary'}]",
		}),
		sourceRow(6, map[string]string{
			ColID:     "31357",
			ColTitle:  "Waiting to Exhale",
			ColGenres: "[{'id': 18}]",
		}),
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantMovies := []Movie{
		{
			ID: "862", Title: "Toy Story", ReleaseDate: "1995-10-30",
			Budget:     sql.NullFloat64{Float64: 30000000, Valid: true},
			Revenue:    sql.NullFloat64{Float64: 373554033, Valid: true},
			Popularity: sql.NullFloat64{Float64: 21.946943, Valid: true},
			Year:       sql.NullInt64{Int64: 1995, Valid: true},
		},
		{ID: "8844", Title: "Jumanji", ReleaseDate: "not a date"},
		{ID: "31357", Title: "Waiting to Exhale"},
	}
	if diff := cmp.Diff(wantMovies, res.Movies); diff != "" {
		t.Fatalf("movies (-want +got):\n%s", diff)
	}

	wantGenres := []Entity{{16, "Animation"}, {35, "Comedy"}, {12, "Adventure"}, {10751, "Family"}}
	if diff := cmp.Diff(wantGenres, res.Genres); diff != "" {
		t.Fatalf("genres (-want +got):\n%s", diff)
	}
	wantMG := []Association{{"862", 16}, {"862", 35}, {"8844", 12}, {"8844", 16}, {"862", 10751}}
	if diff := cmp.Diff(wantMG, res.MovieGenres); diff != "" {
		t.Fatalf("movie_genres (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Entity{{3, "Pixar Animation Studios"}}, res.Companies); diff != "" {
		t.Fatalf("companies (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Association{{"862", 3}}, res.MovieCompanies); diff != "" {
		t.Fatalf("movie_production_companies (-want +got):\n%s", diff)
	}

	wantStats := Stats{Rows: 5, RowErrors: 2, MissingIDs: 1, DuplicateMovies: 1, CoerceFailures: 2}
	if res.Stats != wantStats {
		t.Fatalf("stats=%+v want %+v", res.Stats, wantStats)
	}

	errs := log.matching("Error processing row")
	want := []string{
		"Error processing row with movie ID '': missing primary id",
		`Error processing row with movie ID '31357': genres[0]: missing key "name"`,
	}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Fatalf("row error lines (-want +got):\n%s", diff)
	}
	if len(log.matching("stage=normalize ok rows=5 row_errors=2 movies=3")) != 1 {
		t.Fatalf("missing stage line: %q", log.lines)
	}
}

type leveledLogger struct {
	info, errs recLogger
}

func (l *leveledLogger) Printf(format string, v ...any) { l.info.Printf(format, v...) }
func (l *leveledLogger) Errorf(format string, v ...any) { l.errs.Printf(format, v...) }

func TestEngine_RunLogsRowErrorsAtErrorLevel(t *testing.T) {
	t.Parallel()

	log := &leveledLogger{}
	e := &Engine{Job: "test", Logger: log}
	_, err := e.Run(context.Background(), feed(
		sourceRow(2, map[string]string{ColID: "862", ColGenres: "[{'id': 16, 'name': 'Animation'}, {'id': 35}]"}),
		sourceRow(3, map[string]string{ColID: "8844", ColGenres: "[{'id': 12, 'name': 'Adventure'}]"}),
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{`Error processing row with movie ID '862': genres[1]: missing key "name"`}
	if diff := cmp.Diff(want, log.errs.lines); diff != "" {
		t.Fatalf("error lines (-want +got):\n%s", diff)
	}
	if got := log.info.matching("Error processing row"); len(got) != 0 {
		t.Fatalf("row errors logged at info level: %q", got)
	}
	if got := log.info.matching("stage=normalize ok"); len(got) != 1 {
		t.Fatalf("summary line missing: %q", log.info.lines)
	}
}

func TestEngine_RunIsDeterministic(t *testing.T) {
	t.Parallel()

	rows := func() <-chan *transformer.Row {
		return feed(
			sourceRow(2, map[string]string{ColID: "2", ColGenres: "[{'id': 5, 'name': 'b'}, {'id': 4, 'name': 'a'}]"}),
			sourceRow(3, map[string]string{ColID: "1", ColGenres: "[{'id': 4, 'name': 'z'}, {'id': 6, 'name': 'c'}]"}),
		)
	}
	a, err := (&Engine{}).Run(context.Background(), rows())
	if err != nil {
		t.Fatal(err)
	}
	b, err := (&Engine{}).Run(context.Background(), rows())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
	if a.Genres[1] != (Entity{4, "a"}) {
		t.Fatalf("first-seen name lost: %v", a.Genres)
	}
}

func TestEngine_RunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// never closed: Run must return on ctx alone
	rows := make(chan *transformer.Row)
	_, err := (&Engine{}).Run(ctx, rows)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestStats_String(t *testing.T) {
	t.Parallel()

	s := Stats{Rows: 3, RowErrors: 1}
	want := "rows=3 row_errors=1 missing_ids=0 duplicate_movies=0 coerce_failures=0"
	if s.String() != want {
		t.Fatalf("String()=%q want %q", s.String(), want)
	}
}
