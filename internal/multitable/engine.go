// Package multitable turns the flat movie metadata rows into a star schema:
// one fact table (movies), two dimension tables (genres, production
// companies) and the bridge tables linking them.
package multitable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"movieetl/internal/metrics"
	"movieetl/internal/transformer"
	"movieetl/internal/transformer/builtin"
)

// Logger is the minimal logging interface used by the engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// ErrorLogger is implemented by loggers with a separate error level. Row
// failures go to Errorf when the Logger has it, to Printf otherwise.
type ErrorLogger interface {
	Errorf(format string, v ...any)
}

// Movie is one fact row. ReleaseDate keeps the source text; Year is derived
// from it and is invalid when the date does not parse.
type Movie struct {
	ID          string
	Title       string
	ReleaseDate string
	Budget      sql.NullFloat64
	Revenue     sql.NullFloat64
	Popularity  sql.NullFloat64
	Year        sql.NullInt64
}

// Stats counts what happened during one Run.
type Stats struct {
	Rows            int64 // rows received
	RowErrors       int64 // rows that logged a normalization failure
	MissingIDs      int64 // rows without a primary id (also counted in RowErrors)
	DuplicateMovies int64 // fact rows dropped because the id was already seen
	CoerceFailures  int64 // non-empty numeric/date cells that did not parse
}

// Result is the finalized star schema of one run.
type Result struct {
	Movies         []Movie
	Genres         []Entity
	Companies      []Entity
	MovieGenres    []Association
	MovieCompanies []Association
	Stats          Stats
}

// Engine drives one normalization pass over rows aligned to SourceColumns.
//
// Run is the single writer of all accumulated state; it must not be called
// concurrently on the same Engine.
type Engine struct {
	Job    string
	Logger Logger
}

var factCoerce = transformer.CoerceSpec{Types: map[string]string{
	ColReleaseDate: "year",
	ColBudget:      "float",
	ColRevenue:     "float",
	ColPopularity:  "float",
}}

// Run consumes rows until the channel is closed or ctx is done. Row failures
// are logged and counted; only cancellation ends Run with an error.
func (e *Engine) Run(ctx context.Context, rows <-chan *transformer.Row) (*Result, error) {
	logf := e.logger()
	errf := errorf(e.Logger)
	start := time.Now()

	tables := NewTables()
	norm, err := NewNormalizer(SourceColumns, tables)
	if err != nil {
		return nil, err
	}
	plan := transformer.CompileCoerce(SourceColumns, factCoerce)
	ix := columnIndex(SourceColumns)

	res := &Result{}
	seen := builtin.NewKeySet[string](4096)

	for {
		var r *transformer.Row
		var ok bool
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok = <-rows:
		}
		if !ok {
			break
		}
		res.Stats.Rows++

		if err := norm.Normalize(r); err != nil {
			res.Stats.RowErrors++
			var re *RowError
			if errors.As(err, &re) {
				if errors.Is(re.Err, ErrMissingID) {
					res.Stats.MissingIDs++
				}
				errf("Error processing row with movie ID '%s': %v", re.RecordID, re.Err)
			} else {
				errf("Error processing row: %v", err)
			}
		}

		id := norm.RecordID(r)
		if id == "" {
			r.Free()
			continue
		}
		if !seen.Add(id) {
			res.Stats.DuplicateMovies++
			r.Free()
			continue
		}

		m := Movie{
			ID:          id,
			Title:       r.String(ix[ColTitle]),
			ReleaseDate: r.String(ix[ColReleaseDate]),
		}
		res.Stats.CoerceFailures += int64(plan.Apply(r))
		m.Year, _ = r.V[ix[ColReleaseDate]].(sql.NullInt64)
		m.Budget, _ = r.V[ix[ColBudget]].(sql.NullFloat64)
		m.Revenue, _ = r.V[ix[ColRevenue]].(sql.NullFloat64)
		m.Popularity, _ = r.V[ix[ColPopularity]].(sql.NullFloat64)
		res.Movies = append(res.Movies, m)
		r.Free()
	}

	res.Genres = tables.Genres.Finalize()
	res.Companies = tables.Companies.Finalize()
	res.MovieGenres = tables.MovieGenres.Finalize()
	res.MovieCompanies = tables.MovieCompanies.Finalize()

	e.record(res)
	logf("stage=normalize ok rows=%d row_errors=%d movies=%d duration=%s",
		res.Stats.Rows, res.Stats.RowErrors, len(res.Movies), durMS(start))
	return res, nil
}

func (e *Engine) record(res *Result) {
	job := e.Job
	metrics.RecordRow(job, "processed", res.Stats.Rows)
	metrics.RecordRow(job, "row_errors", res.Stats.RowErrors)
	metrics.RecordRow(job, "movies", int64(len(res.Movies)))
	metrics.RecordRow(job, "genres", int64(len(res.Genres)))
	metrics.RecordRow(job, "production_companies", int64(len(res.Companies)))
	metrics.RecordRow(job, "movie_genres", int64(len(res.MovieGenres)))
	metrics.RecordRow(job, "movie_production_companies", int64(len(res.MovieCompanies)))
}

func (e *Engine) logger() func(format string, v ...any) { return printf(e.Logger) }

func printf(l Logger) func(format string, v ...any) {
	if l == nil {
		return log.New(discardWriter{}, "", 0).Printf
	}
	return l.Printf
}

// errorf picks the error-level method of l when there is one.
func errorf(l Logger) func(format string, v ...any) {
	if el, ok := l.(ErrorLogger); ok {
		return el.Errorf
	}
	return printf(l)
}

func columnIndex(columns []string) map[string]int {
	m := make(map[string]int, len(columns))
	for i, c := range columns {
		m[c] = i
	}
	return m
}

// String renders the stats for the run summary line.
func (s Stats) String() string {
	return fmt.Sprintf("rows=%d row_errors=%d missing_ids=%d duplicate_movies=%d coerce_failures=%d",
		s.Rows, s.RowErrors, s.MissingIDs, s.DuplicateMovies, s.CoerceFailures)
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
