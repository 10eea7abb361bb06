// Package custommovies manages hand-entered movies owned by a single group.
package custommovies

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/database"
)

// Store persists custom movies. Lookups return nil when absent.
type Store interface {
	Create(ctx context.Context, m *models.CustomMovie) error
	FindByID(ctx context.Context, id int64) (*models.CustomMovie, error)
	Update(ctx context.Context, m *models.CustomMovie) error
	Delete(ctx context.Context, id int64) error
	ListByGroups(ctx context.Context, groupIDs []int64, query string, limit, offset int) ([]models.CustomMovie, int, error)
}

// Repository is the Postgres custom movie store.
type Repository struct {
	tx *database.TxManager
}

// NewRepository creates a custom movies repository.
func NewRepository(tx *database.TxManager) *Repository {
	return &Repository{tx: tx}
}

var _ Store = (*Repository)(nil)

const columns = `id, group_id, title, poster_path, overview, release_year, runtime, status,
	planned_date, watched_date, created_by_id, created_at, updated_at`

func scan(row pgx.Row, m *models.CustomMovie, extra ...any) error {
	var status string
	dest := append([]any{&m.ID, &m.GroupID, &m.Title, &m.PosterPath, &m.Overview, &m.ReleaseYear, &m.Runtime, &status,
		&m.PlannedDate, &m.WatchedDate, &m.CreatedByID, &m.CreatedAt, &m.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	m.Status = models.MovieStatus(status)
	return nil
}

// Create inserts m and fills its generated fields.
func (r *Repository) Create(ctx context.Context, m *models.CustomMovie) error {
	const q = `INSERT INTO custom_movies (group_id, title, poster_path, overview, release_year, runtime, status,
			planned_date, watched_date, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`
	err := r.tx.Conn(ctx).QueryRow(ctx, q, m.GroupID, m.Title, m.PosterPath, m.Overview, m.ReleaseYear, m.Runtime,
		string(m.Status), m.PlannedDate, m.WatchedDate, m.CreatedByID).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create custom movie: %w", err)
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*models.CustomMovie, error) {
	var m models.CustomMovie
	err := scan(r.tx.Conn(ctx).QueryRow(ctx, `SELECT `+columns+` FROM custom_movies WHERE id = $1`, id), &m)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find custom movie %d: %w", id, err)
	}
	return &m, nil
}

// Update writes every mutable field of m.
func (r *Repository) Update(ctx context.Context, m *models.CustomMovie) error {
	const q = `UPDATE custom_movies SET
			title = $2, poster_path = $3, overview = $4, release_year = $5, runtime = $6,
			status = $7, planned_date = $8, watched_date = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.tx.Conn(ctx).QueryRow(ctx, q, m.ID, m.Title, m.PosterPath, m.Overview, m.ReleaseYear, m.Runtime,
		string(m.Status), m.PlannedDate, m.WatchedDate).Scan(&m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update custom movie %d: %w", m.ID, err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.tx.Conn(ctx).Exec(ctx, `DELETE FROM custom_movies WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete custom movie %d: %w", id, err)
	}
	return nil
}

// ListByGroups pages through the custom movies of groupIDs, oldest first.
// query matches title or overview, case-insensitively.
func (r *Repository) ListByGroups(ctx context.Context, groupIDs []int64, query string, limit, offset int) ([]models.CustomMovie, int, error) {
	if len(groupIDs) == 0 {
		return []models.CustomMovie{}, 0, nil
	}
	const q = `SELECT ` + columns + `, COUNT(*) OVER ()
		FROM custom_movies
		WHERE group_id = ANY($1)
		  AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR overview ILIKE '%' || $2 || '%')
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4`
	rows, err := r.tx.Conn(ctx).Query(ctx, q, groupIDs, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list custom movies: %w", err)
	}
	defer rows.Close()
	list := []models.CustomMovie{}
	total := 0
	for rows.Next() {
		var m models.CustomMovie
		if err := scan(rows, &m, &total); err != nil {
			return nil, 0, err
		}
		list = append(list, m)
	}
	return list, total, rows.Err()
}
