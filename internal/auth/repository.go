package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/database"
)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = apperr.Conflict("email_taken", "email already registered")

var (
	ErrUserNotFound   = apperr.NotFound("user_not_found", "user not found")
	ErrNotAccountOwner = apperr.Forbidden("not_account_owner", "only the account owner or a platform admin may do this")
	// ErrUserOwnsGroups blocks deleting an account that still administers a group.
	ErrUserOwnsGroups = apperr.Conflict("user_owns_groups", "user is the admin of a group; transfer ownership or delete the group first")
)

// UserStore persists platform users.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.UserPublic, error)
	Create(ctx context.Context, name, email, passwordHash string, role models.UserRole) (*models.User, error)
	// Update returns nil when the user does not exist.
	Update(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Repository handles user persistence.
type Repository struct {
	tx *database.TxManager
}

// NewRepository creates an auth repository.
func NewRepository(tx *database.TxManager) *Repository {
	return &Repository{tx: tx}
}

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = models.UserRole(role)
	return &u, nil
}

// GetByID returns a user by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(r.tx.Conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// GetByEmail returns a user by email, or nil when absent.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.tx.Conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// List returns all users for platform admins.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.tx.Conn(ctx).Query(ctx, `SELECT id, name, email, role, created_at FROM users ORDER BY name, email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	list := []models.UserPublic{}
	for rows.Next() {
		var u models.UserPublic
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &role, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = models.UserRole(role)
		list = append(list, u)
	}
	return list, rows.Err()
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, name, email, passwordHash string, role models.UserRole) (*models.User, error) {
	const q = `INSERT INTO users (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	u, err := scanUser(r.tx.Conn(ctx).QueryRow(ctx, q, name, email, passwordHash, string(role)))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Update applies the non-nil fields of patch.
func (r *Repository) Update(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	const q = `UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			password_hash = COALESCE($4, password_hash),
			role = COALESCE($5, role),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	var role *string
	if patch.Role != nil {
		v := string(*patch.Role)
		role = &v
	}
	u, err := scanUser(r.tx.Conn(ctx).QueryRow(ctx, q, id, patch.Name, patch.Email, patch.PasswordHash, role))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update user %d: %w", id, err)
	}
	return u, nil
}

// Delete removes a user. Memberships cascade; catalog and schedule references are nulled.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.tx.Conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete user %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}
