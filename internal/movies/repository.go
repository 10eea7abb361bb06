// Package movies holds the catalog of movies shared by every group.
package movies

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/database"
)

var (
	ErrMovieNotFound      = apperr.NotFound("movie_not_found", "Movie not found")
	ErrMovieAlreadyExists = apperr.Conflict("movie_already_exists", "Movie with this external id already exists")
)

// MovieNotFound returns ErrMovieNotFound naming id.
func MovieNotFound(id int64) error {
	return ErrMovieNotFound.WithMessage("Movie with id %d not found", id)
}

// Store reads and writes catalog movies. Lookups return nil when absent.
type Store interface {
	FindByID(ctx context.Context, id int64) (*models.Movie, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Movie, error)
	FindByImdbID(ctx context.Context, imdbID string) (*models.Movie, error)
	Search(ctx context.Context, query string, limit, offset int) ([]models.Movie, int, error)
	Create(ctx context.Context, m *models.Movie) error
	// Update overwrites the editable fields of m. Returns nil when the movie does not exist.
	Update(ctx context.Context, m *models.Movie) (*models.Movie, error)
	// Delete removes the movie and, by cascade, every group's reference to it.
	Delete(ctx context.Context, id int64) (bool, error)
}

// Repository is the Postgres catalog store.
type Repository struct {
	tx *database.TxManager
}

// NewRepository creates a movies repository.
func NewRepository(tx *database.TxManager) *Repository {
	return &Repository{tx: tx}
}

var _ Store = (*Repository)(nil)

const movieColumns = `id, external_id, imdb_id, title, poster_path, overview, release_year, rating, runtime, created_at, updated_at`

// ScanMovie scans movieColumns in order.
func ScanMovie(row pgx.Row, m *models.Movie) error {
	return row.Scan(&m.ID, &m.ExternalID, &m.ImdbID, &m.Title, &m.PosterPath, &m.Overview,
		&m.ReleaseYear, &m.Rating, &m.Runtime, &m.CreatedAt, &m.UpdatedAt)
}

func (r *Repository) findOne(ctx context.Context, where string, arg any) (*models.Movie, error) {
	var m models.Movie
	err := ScanMovie(r.tx.Conn(ctx).QueryRow(ctx, `SELECT `+movieColumns+` FROM movies WHERE `+where, arg), &m)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find movie: %w", err)
	}
	return &m, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Movie, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*models.Movie, error) {
	return r.findOne(ctx, `external_id = $1`, externalID)
}

func (r *Repository) FindByImdbID(ctx context.Context, imdbID string) (*models.Movie, error) {
	return r.findOne(ctx, `imdb_id = $1`, imdbID)
}

// Search matches query against titles, case-insensitively. An empty query lists everything.
func (r *Repository) Search(ctx context.Context, query string, limit, offset int) ([]models.Movie, int, error) {
	const q = `SELECT ` + movieColumns + `, COUNT(*) OVER ()
		FROM movies
		WHERE $1 = '' OR title ILIKE '%' || $1 || '%'
		ORDER BY title, id
		LIMIT $2 OFFSET $3`
	rows, err := r.tx.Conn(ctx).Query(ctx, q, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search movies: %w", err)
	}
	defer rows.Close()
	list := []models.Movie{}
	total := 0
	for rows.Next() {
		var m models.Movie
		if err := rows.Scan(&m.ID, &m.ExternalID, &m.ImdbID, &m.Title, &m.PosterPath, &m.Overview,
			&m.ReleaseYear, &m.Rating, &m.Runtime, &m.CreatedAt, &m.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		list = append(list, m)
	}
	return list, total, rows.Err()
}

// Create inserts m and fills its generated fields.
func (r *Repository) Create(ctx context.Context, m *models.Movie) error {
	const q = `INSERT INTO movies (external_id, imdb_id, title, poster_path, overview, release_year, rating, runtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := r.tx.Conn(ctx).QueryRow(ctx, q, m.ExternalID, m.ImdbID, m.Title, m.PosterPath, m.Overview,
		m.ReleaseYear, m.Rating, m.Runtime).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrMovieAlreadyExists
		}
		return fmt.Errorf("create movie: %w", err)
	}
	return nil
}

// Update writes the editable catalog fields. External and IMDb ids are fixed.
func (r *Repository) Update(ctx context.Context, m *models.Movie) (*models.Movie, error) {
	const q = `UPDATE movies SET
		title = $2, poster_path = $3, overview = $4, release_year = $5, rating = $6, runtime = $7,
		updated_at = NOW()
		WHERE id = $1
		RETURNING ` + movieColumns
	var out models.Movie
	err := ScanMovie(r.tx.Conn(ctx).QueryRow(ctx, q, m.ID, m.Title, m.PosterPath, m.Overview,
		m.ReleaseYear, m.Rating, m.Runtime), &out)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update movie %d: %w", m.ID, err)
	}
	return &out, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.tx.Conn(ctx).Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete movie %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}
