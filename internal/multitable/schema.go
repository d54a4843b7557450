package multitable

import "movieetl/internal/storage"

// Table names of the star schema. The aggregation query refers to them.
const (
	TableMovies                   = "movies"
	TableGenres                   = "genres"
	TableProductionCompanies      = "production_companies"
	TableMovieGenres              = "movie_genres"
	TableMovieProductionCompanies = "movie_production_companies"
)

// Column lists, in export and insert order.
var (
	MovieColumns        = []string{"movie_id", "title", "release_date", "budget", "revenue", "popularity", "year"}
	GenreColumns        = []string{"genre_id", "name"}
	CompanyColumns      = []string{"company_id", "name"}
	MovieGenreColumns   = []string{"movie_id", "genre_id"}
	MovieCompanyColumns = []string{"movie_id", "company_id"}
)

const movieIDSize = 64

// StarSchema returns the table definitions, dimensions and facts before the
// bridges that reference them.
func StarSchema() []storage.TableSpec {
	null := storage.Nullable(true)
	return []storage.TableSpec{
		{
			Name:       TableGenres,
			PrimaryKey: []string{"genre_id"},
			Columns: []storage.ColumnSpec{
				{Name: "genre_id", Type: storage.TypeBigInt},
				{Name: "name", Type: storage.TypeText, Nullable: null},
			},
		},
		{
			Name:       TableProductionCompanies,
			PrimaryKey: []string{"company_id"},
			Columns: []storage.ColumnSpec{
				{Name: "company_id", Type: storage.TypeBigInt},
				{Name: "name", Type: storage.TypeText, Nullable: null},
			},
		},
		{
			Name:       TableMovies,
			PrimaryKey: []string{"movie_id"},
			Columns: []storage.ColumnSpec{
				{Name: "movie_id", Type: storage.TypeText, Size: movieIDSize},
				{Name: "title", Type: storage.TypeText, Nullable: null},
				{Name: "release_date", Type: storage.TypeDate, Nullable: null},
				{Name: "budget", Type: storage.TypeDouble, Nullable: null},
				{Name: "revenue", Type: storage.TypeDouble, Nullable: null},
				{Name: "popularity", Type: storage.TypeDouble, Nullable: null},
				{Name: "year", Type: storage.TypeInt, Nullable: null},
			},
		},
		{
			Name:       TableMovieGenres,
			PrimaryKey: []string{"movie_id", "genre_id"},
			Columns: []storage.ColumnSpec{
				{Name: "movie_id", Type: storage.TypeText, Size: movieIDSize, References: "movies(movie_id)"},
				{Name: "genre_id", Type: storage.TypeBigInt, References: "genres(genre_id)"},
			},
		},
		{
			Name:       TableMovieProductionCompanies,
			PrimaryKey: []string{"movie_id", "company_id"},
			Columns: []storage.ColumnSpec{
				{Name: "movie_id", Type: storage.TypeText, Size: movieIDSize, References: "movies(movie_id)"},
				{Name: "company_id", Type: storage.TypeBigInt, References: "production_companies(company_id)"},
			},
		},
	}
}
