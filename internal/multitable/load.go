package multitable

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"movieetl/internal/metrics"
	"movieetl/internal/storage"
	"movieetl/internal/transformer/builtin"
)

// Loader copies a finalized Result into a SQL database.
//
// Inserts are idempotent: every table is written with its primary key as the
// conflict target, so loading the same Result twice leaves one copy.
type Loader struct {
	Repo      storage.MultiRepository
	Job       string
	BatchSize int
	Logger    Logger
}

// Load creates the star schema tables when missing and inserts every row.
// It returns the number of rows inserted per table.
func (l *Loader) Load(ctx context.Context, res *Result) (map[string]int64, error) {
	if l.Repo == nil {
		return nil, fmt.Errorf("loader: Repo is required")
	}
	logf := printf(l.Logger)

	ddlStart := time.Now()
	if err := l.Repo.EnsureTables(ctx, StarSchema()); err != nil {
		return nil, err
	}
	logf("stage=ddl ok duration=%s", durMS(ddlStart))

	specs := make(map[string]storage.TableSpec)
	for _, t := range StarSchema() {
		specs[t.Name] = t
	}

	plan := []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{TableGenres, GenreColumns, entityRows(res.Genres)},
		{TableProductionCompanies, CompanyColumns, entityRows(res.Companies)},
		{TableMovies, MovieColumns, movieRows(res.Movies)},
		{TableMovieGenres, MovieGenreColumns, associationRows(res.MovieGenres)},
		{TableMovieProductionCompanies, MovieCompanyColumns, associationRows(res.MovieCompanies)},
	}

	inserted := make(map[string]int64, len(plan))
	for _, p := range plan {
		start := time.Now()
		n, err := l.insertBatched(ctx, p.table, p.columns, p.rows, specs[p.table].ConflictColumns())
		if err != nil {
			return inserted, fmt.Errorf("load %s: %w", p.table, err)
		}
		inserted[p.table] = n
		logf("stage=load table=%s rows=%d inserted=%d duration=%s", p.table, len(p.rows), n, durMS(start))
	}
	return inserted, nil
}

func (l *Loader) insertBatched(ctx context.Context, table string, columns []string, rows [][]any, conflict []string) (int64, error) {
	size := l.BatchSize
	if size <= 0 {
		size = len(rows)
	}
	var total, batches int64
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		n, err := l.Repo.InsertRows(ctx, table, columns, rows[start:end], conflict)
		if err != nil {
			return total, err
		}
		total += n
		batches++
	}
	metrics.RecordBatches(l.Job, batches)
	return total, nil
}

func entityRows(in []Entity) [][]any {
	out := make([][]any, len(in))
	for i, e := range in {
		out[i] = []any{e.ID, e.Name}
	}
	return out
}

func associationRows(in []Association) [][]any {
	out := make([][]any, len(in))
	for i, a := range in {
		out[i] = []any{a.Left, a.Right}
	}
	return out
}

func movieRows(in []Movie) [][]any {
	out := make([][]any, len(in))
	for i, m := range in {
		out[i] = []any{
			m.ID,
			nullString(m.Title),
			releaseDate(m.ReleaseDate),
			nullFloat(m.Budget),
			nullFloat(m.Revenue),
			nullFloat(m.Popularity),
			nullInt(m.Year),
		}
	}
	return out
}

// releaseDate returns the parsed date, or nil when the text is not a date.
func releaseDate(s string) any {
	t, ok := builtin.ParseDate(s)
	if !ok {
		return nil
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(v sql.NullFloat64) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func nullInt(v sql.NullInt64) any {
	if !v.Valid {
		return nil
	}
	return v.Int64
}
