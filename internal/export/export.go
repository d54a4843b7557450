// Package export writes the normalized star schema to the output root:
// one CSV per table under data/ and the revenue report query as a .sql file.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"

	"movieetl/internal/multitable"
	"movieetl/internal/transformer/builtin"
)

// Output layout under the root directory.
const (
	DataDir   = "data"
	QueryFile = "revenue_by_genre_by_year.sql"

	MoviesFile                   = "movies.csv"
	GenresFile                   = "genres.csv"
	ProductionCompaniesFile      = "production_companies.csv"
	MovieGenresFile              = "movie_genres.csv"
	MovieProductionCompaniesFile = "movie_production_companies.csv"
)

// RevenueByGenreByYearSQL is written verbatim to QueryFile. It is never run.
const RevenueByGenreByYearSQL = `
            SELECT
                EXTRACT(YEAR FROM M.release_date) AS release_year,
                G.name AS genre_name,
                SUM(M.revenue) AS total_revenue
            FROM
                movies M
            JOIN
                movie_genres MG ON M.movie_id = MG.movie_id
            JOIN
                genres G ON MG.genre_id = G.genre_id
            GROUP BY
                release_year, genre_name
            ORDER BY
                release_year, total_revenue DESC;
            `

// FatalIOError is returned for any filesystem failure while exporting.
type FatalIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *FatalIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FatalIOError) Unwrap() error { return e.Err }

// Logger is the minimal logging interface used by the exporter.
type Logger interface {
	Printf(format string, v ...any)
}

// PrepareOutputDir removes root and everything below it, then recreates it
// with an empty data directory.
func PrepareOutputDir(root string) error {
	if err := os.RemoveAll(root); err != nil {
		return &FatalIOError{Op: "remove", Path: root, Err: err}
	}
	dir := filepath.Join(root, DataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FatalIOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

// FileSummary describes one written file.
type FileSummary struct {
	Path     string
	Rows     int
	Checksum uint64 // xxh3 of the file bytes
}

// Summary lists what Write produced.
type Summary struct {
	DataDir   string
	QueryPath string
	Files     []FileSummary
}

// Writer exports a multitable.Result under Root.
type Writer struct {
	Root   string
	Logger Logger
}

type table struct {
	file   string
	header []string
	rows   int
	record func(i int, dst []string) []string
}

// Write creates every table file and the query file. Existing files are
// truncated. The first filesystem error aborts the export.
func (w *Writer) Write(res *multitable.Result) (*Summary, error) {
	logf := w.logger()
	start := time.Now()

	dataDir := filepath.Join(w.Root, DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &FatalIOError{Op: "mkdir", Path: dataDir, Err: err}
	}

	sum := &Summary{DataDir: dataDir}
	for _, t := range tables(res) {
		path := filepath.Join(dataDir, t.file)
		fs, err := writeCSV(path, t)
		if err != nil {
			return nil, err
		}
		sum.Files = append(sum.Files, fs)
		logf("stage=export file=%s rows=%d xxh3=%016x", filepath.Join(DataDir, t.file), fs.Rows, fs.Checksum)
	}

	sum.QueryPath = filepath.Join(w.Root, QueryFile)
	if err := os.WriteFile(sum.QueryPath, []byte(RevenueByGenreByYearSQL), 0o644); err != nil {
		return nil, &FatalIOError{Op: "write", Path: sum.QueryPath, Err: err}
	}

	logf("stage=export ok files=%d duration=%s", len(sum.Files)+1, time.Since(start).Truncate(time.Millisecond))
	return sum, nil
}

func (w *Writer) logger() func(format string, v ...any) {
	if w.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return w.Logger.Printf
}

func tables(res *multitable.Result) []table {
	return []table{
		{
			file:   MoviesFile,
			header: multitable.MovieColumns,
			rows:   len(res.Movies),
			record: func(i int, dst []string) []string {
				m := res.Movies[i]
				dst = append(dst, m.ID, m.Title, m.ReleaseDate,
					formatFloat(m.Budget.Float64, m.Budget.Valid),
					formatFloat(m.Revenue.Float64, m.Revenue.Valid),
					formatFloat(m.Popularity.Float64, m.Popularity.Valid),
					formatInt(m.Year.Int64, m.Year.Valid))
				return dst
			},
		},
		entityTable(GenresFile, multitable.GenreColumns, res.Genres),
		entityTable(ProductionCompaniesFile, multitable.CompanyColumns, res.Companies),
		associationTable(MovieGenresFile, multitable.MovieGenreColumns, res.MovieGenres),
		associationTable(MovieProductionCompaniesFile, multitable.MovieCompanyColumns, res.MovieCompanies),
	}
}

func entityTable(file string, header []string, rows []multitable.Entity) table {
	return table{
		file:   file,
		header: header,
		rows:   len(rows),
		record: func(i int, dst []string) []string {
			return append(dst, strconv.FormatInt(rows[i].ID, 10), rows[i].Name)
		},
	}
}

func associationTable(file string, header []string, rows []multitable.Association) table {
	return table{
		file:   file,
		header: header,
		rows:   len(rows),
		record: func(i int, dst []string) []string {
			return append(dst, rows[i].Left, strconv.FormatInt(rows[i].Right, 10))
		},
	}
}

func writeCSV(path string, t table) (fs FileSummary, err error) {
	f, err := os.Create(path)
	if err != nil {
		return fs, &FatalIOError{Op: "create", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &FatalIOError{Op: "close", Path: path, Err: cerr}
		}
	}()

	h := xxh3.New()
	bw := bufio.NewWriterSize(io.MultiWriter(f, h), 64<<10)
	cw := csv.NewWriter(bw)

	if err := cw.Write(t.header); err != nil {
		return fs, &FatalIOError{Op: "write", Path: path, Err: err}
	}
	rec := make([]string, 0, len(t.header))
	for i := 0; i < t.rows; i++ {
		rec = t.record(i, rec[:0])
		if err := cw.Write(rec); err != nil {
			return fs, &FatalIOError{Op: "write", Path: path, Err: err}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fs, &FatalIOError{Op: "write", Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		return fs, &FatalIOError{Op: "write", Path: path, Err: err}
	}

	return FileSummary{Path: path, Rows: t.rows, Checksum: h.Sum64()}, nil
}

func formatFloat(f float64, valid bool) string {
	if !valid {
		return ""
	}
	return builtin.FormatFloat(f)
}

func formatInt(n int64, valid bool) string {
	if !valid {
		return ""
	}
	return strconv.FormatInt(n, 10)
}
