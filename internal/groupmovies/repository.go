// Package groupmovies links catalog movies to groups and tracks their watch status.
package groupmovies

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/database"
)

// Store persists group movies. Lookups return nil when absent.
type Store interface {
	Add(ctx context.Context, gm *models.GroupMovie) error
	Find(ctx context.Context, groupID, movieID int64) (*models.GroupMovieWithMovie, error)
	ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]models.GroupMovieWithMovie, int, error)
	MovieIDs(ctx context.Context, groupID int64) ([]int64, error)
	UpdateStatus(ctx context.Context, gm *models.GroupMovie) error
	Delete(ctx context.Context, groupID, movieID int64) error
}

// Repository is the Postgres group movie store.
type Repository struct {
	tx *database.TxManager
}

// NewRepository creates a group movies repository.
func NewRepository(tx *database.TxManager) *Repository {
	return &Repository{tx: tx}
}

var _ Store = (*Repository)(nil)

const joinedColumns = `gm.id, gm.group_id, gm.movie_id, gm.added_by_id, gm.status, gm.planned_date, gm.watched_date,
	gm.created_at, gm.updated_at,
	mv.id, mv.external_id, mv.imdb_id, mv.title, mv.poster_path, mv.overview, mv.release_year, mv.rating,
	mv.runtime, mv.created_at, mv.updated_at`

func scanJoined(row pgx.Row, extra ...any) (*models.GroupMovieWithMovie, error) {
	var (
		gm     models.GroupMovieWithMovie
		status string
	)
	mv := &gm.Movie
	dest := append([]any{&gm.ID, &gm.GroupID, &gm.MovieID, &gm.AddedByID, &status, &gm.PlannedDate, &gm.WatchedDate,
		&gm.CreatedAt, &gm.UpdatedAt,
		&mv.ID, &mv.ExternalID, &mv.ImdbID, &mv.Title, &mv.PosterPath, &mv.Overview, &mv.ReleaseYear, &mv.Rating,
		&mv.Runtime, &mv.CreatedAt, &mv.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	gm.Status = models.MovieStatus(status)
	return &gm, nil
}

// Add inserts gm. A duplicate (group, movie) pair is ErrMovieAlreadyInGroup.
func (r *Repository) Add(ctx context.Context, gm *models.GroupMovie) error {
	const q = `INSERT INTO group_movies (group_id, movie_id, added_by_id, status, planned_date, watched_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := r.tx.Conn(ctx).QueryRow(ctx, q, gm.GroupID, gm.MovieID, gm.AddedByID, string(gm.Status),
		gm.PlannedDate, gm.WatchedDate).Scan(&gm.ID, &gm.CreatedAt, &gm.UpdatedAt)
	switch {
	case database.IsUniqueViolation(err):
		return ErrMovieAlreadyInGroup
	case err != nil:
		return fmt.Errorf("insert group movie: %w", err)
	}
	return nil
}

func (r *Repository) Find(ctx context.Context, groupID, movieID int64) (*models.GroupMovieWithMovie, error) {
	q := `SELECT ` + joinedColumns + `
		FROM group_movies gm JOIN movies mv ON mv.id = gm.movie_id
		WHERE gm.group_id = $1 AND gm.movie_id = $2`
	gm, err := scanJoined(r.tx.Conn(ctx).QueryRow(ctx, q, groupID, movieID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find group movie: %w", err)
	}
	return gm, nil
}

// ListByGroup pages through a group's movies, most recently added first.
func (r *Repository) ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]models.GroupMovieWithMovie, int, error) {
	q := `SELECT ` + joinedColumns + `, COUNT(*) OVER ()
		FROM group_movies gm JOIN movies mv ON mv.id = gm.movie_id
		WHERE gm.group_id = $1
		ORDER BY gm.created_at DESC, gm.id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.tx.Conn(ctx).Query(ctx, q, groupID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list group movies: %w", err)
	}
	defer rows.Close()
	list := []models.GroupMovieWithMovie{}
	total := 0
	for rows.Next() {
		gm, err := scanJoined(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *gm)
	}
	return list, total, rows.Err()
}

// MovieIDs returns the catalog ids linked to a group.
func (r *Repository) MovieIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.tx.Conn(ctx).Query(ctx, `SELECT movie_id FROM group_movies WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group movie ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan group movie ids: %w", err)
	}
	return ids, nil
}

// UpdateStatus writes gm's status and dates.
func (r *Repository) UpdateStatus(ctx context.Context, gm *models.GroupMovie) error {
	const q = `UPDATE group_movies SET status = $3, planned_date = $4, watched_date = $5, updated_at = NOW()
		WHERE group_id = $1 AND movie_id = $2
		RETURNING updated_at`
	err := r.tx.Conn(ctx).QueryRow(ctx, q, gm.GroupID, gm.MovieID, string(gm.Status), gm.PlannedDate, gm.WatchedDate).
		Scan(&gm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update group movie status: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, groupID, movieID int64) error {
	_, err := r.tx.Conn(ctx).Exec(ctx, `DELETE FROM group_movies WHERE group_id = $1 AND movie_id = $2`, groupID, movieID)
	if err != nil {
		return fmt.Errorf("delete group movie: %w", err)
	}
	return nil
}
