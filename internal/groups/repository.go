package groups

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/database"
)

const groupColumns = `g.id, g.name, g.description, g.avatar_url, g.created_at, g.updated_at`
const memberColumns = `m.id, m.group_id, m.user_id, m.role, m.created_at, m.updated_at`

// PostgresStore handles group and group_members persistence.
type PostgresStore struct {
	tx *database.TxManager
}

// NewPostgresStore creates a Postgres-backed group store.
func NewPostgresStore(tx *database.TxManager) *PostgresStore {
	return &PostgresStore{tx: tx}
}

var _ Store = (*PostgresStore)(nil)

func scanGroup(row pgx.Row) (*models.Group, error) {
	var g models.Group
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.AvatarURL, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func scanMember(row pgx.Row) (*models.GroupMember, error) {
	var m models.GroupMember
	var role string
	if err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Role = models.GroupMemberRole(role)
	return &m, nil
}

func scanMemberWithUser(row pgx.Row) (*models.GroupMemberWithUser, error) {
	var m models.GroupMemberWithUser
	var role string
	if err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt,
		&m.User.ID, &m.User.Name, &m.User.Email); err != nil {
		return nil, err
	}
	m.Role = models.GroupMemberRole(role)
	return &m, nil
}

// CreateGroup inserts g and fills its generated fields.
func (s *PostgresStore) CreateGroup(ctx context.Context, g *models.Group) error {
	const q = `INSERT INTO groups (name, description, avatar_url)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	if err := s.tx.Conn(ctx).QueryRow(ctx, q, g.Name, g.Description, g.AvatarURL).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// FindGroupByID returns the group or nil.
func (s *PostgresStore) FindGroupByID(ctx context.Context, id int64) (*models.Group, error) {
	q := `SELECT ` + groupColumns + ` FROM groups g WHERE g.id = $1`
	g, err := scanGroup(s.tx.Conn(ctx).QueryRow(ctx, q, id))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find group: %w", err)
	}
	return g, nil
}

// FindAllGroups returns every group ordered by id.
func (s *PostgresStore) FindAllGroups(ctx context.Context) ([]models.Group, error) {
	return s.queryGroups(ctx, `SELECT `+groupColumns+` FROM groups g ORDER BY g.id`)
}

// FindGroupsByUserID returns groups the user belongs to, ordered by join time.
func (s *PostgresStore) FindGroupsByUserID(ctx context.Context, userID int64) ([]models.Group, error) {
	q := `SELECT ` + groupColumns + `
		FROM groups g
		INNER JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY m.created_at ASC, m.id ASC`
	return s.queryGroups(ctx, q, userID)
}

func (s *PostgresStore) FindGroupsAdministeredBy(ctx context.Context, userID int64) ([]models.Group, error) {
	if _, err := s.tx.Conn(ctx).Exec(ctx,
		`SELECT 1 FROM group_members WHERE user_id = $1 FOR UPDATE`, userID); err != nil {
		return nil, fmt.Errorf("lock memberships: %w", err)
	}
	q := `SELECT ` + groupColumns + `
		FROM groups g
		INNER JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1 AND m.role = 'admin'
		ORDER BY g.id ASC`
	return s.queryGroups(ctx, q, userID)
}

func (s *PostgresStore) queryGroups(ctx context.Context, q string, args ...any) ([]models.Group, error) {
	rows, err := s.tx.Conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()
	list := []models.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *g)
	}
	return list, rows.Err()
}

// UpdateGroup applies the provided fields of patch. Returns nil if the group does not exist.
func (s *PostgresStore) UpdateGroup(ctx context.Context, id int64, patch models.GroupPatch) (*models.Group, error) {
	const q = `UPDATE groups g SET
		name = CASE WHEN $2 THEN $3 ELSE g.name END,
		description = CASE WHEN $4 THEN $5 ELSE g.description END,
		avatar_url = CASE WHEN $6 THEN $7 ELSE g.avatar_url END,
		updated_at = NOW()
		WHERE g.id = $1
		RETURNING ` + groupColumns
	name := ""
	if patch.Name != nil {
		name = *patch.Name
	}
	g, err := scanGroup(s.tx.Conn(ctx).QueryRow(ctx, q, id,
		patch.Name != nil, name,
		patch.Description.Set, patch.Description.Value,
		patch.AvatarURL.Set, patch.AvatarURL.Value))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update group: %w", err)
	}
	return g, nil
}

// DeleteGroup removes the group; membership rows and group movies cascade.
func (s *PostgresStore) DeleteGroup(ctx context.Context, id int64) error {
	if _, err := s.tx.Conn(ctx).Exec(ctx, `DELETE FROM groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// AddMember inserts a membership row.
func (s *PostgresStore) AddMember(ctx context.Context, m *models.GroupMember) error {
	const q = `INSERT INTO group_members (group_id, user_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	err := s.tx.Conn(ctx).QueryRow(ctx, q, m.GroupID, m.UserID, string(m.Role)).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	switch {
	case database.IsUniqueViolation(err):
		return ErrUserAlreadyMember
	case database.IsForeignKeyViolation(err):
		return ErrUserNotFound
	case err != nil:
		return fmt.Errorf("insert group member: %w", err)
	}
	return nil
}

// FindMember returns the membership row or nil.
func (s *PostgresStore) FindMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	q := `SELECT ` + memberColumns + ` FROM group_members m WHERE m.group_id = $1 AND m.user_id = $2`
	m, err := scanMember(s.tx.Conn(ctx).QueryRow(ctx, q, groupID, userID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find group member: %w", err)
	}
	return m, nil
}

// FindMemberWithUser returns the membership row joined with the user summary, or nil.
func (s *PostgresStore) FindMemberWithUser(ctx context.Context, groupID, userID int64) (*models.GroupMemberWithUser, error) {
	q := `SELECT ` + memberColumns + `, u.id, u.name, u.email
		FROM group_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1 AND m.user_id = $2`
	m, err := scanMemberWithUser(s.tx.Conn(ctx).QueryRow(ctx, q, groupID, userID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find group member with user: %w", err)
	}
	return m, nil
}

// FindMembersByGroup returns the group's membership rows in join order.
func (s *PostgresStore) FindMembersByGroup(ctx context.Context, groupID int64) ([]models.GroupMember, error) {
	q := `SELECT ` + memberColumns + ` FROM group_members m WHERE m.group_id = $1 ORDER BY m.created_at ASC, m.id ASC`
	rows, err := s.tx.Conn(ctx).Query(ctx, q, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()
	list := []models.GroupMember{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// FindMembersByGroupWithUsers returns the group's members joined with user summaries, in join order.
func (s *PostgresStore) FindMembersByGroupWithUsers(ctx context.Context, groupID int64) ([]models.GroupMemberWithUser, error) {
	q := `SELECT ` + memberColumns + `, u.id, u.name, u.email
		FROM group_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1
		ORDER BY m.created_at ASC, m.id ASC`
	rows, err := s.tx.Conn(ctx).Query(ctx, q, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members with users: %w", err)
	}
	defer rows.Close()
	list := []models.GroupMemberWithUser{}
	for rows.Next() {
		m, err := scanMemberWithUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// UpdateMemberRole sets the member's role. Returns nil if the row does not exist.
func (s *PostgresStore) UpdateMemberRole(ctx context.Context, groupID, userID int64, role models.GroupMemberRole) (*models.GroupMember, error) {
	q := `UPDATE group_members m SET role = $3, updated_at = NOW()
		WHERE m.group_id = $1 AND m.user_id = $2
		RETURNING ` + memberColumns
	m, err := scanMember(s.tx.Conn(ctx).QueryRow(ctx, q, groupID, userID, string(role)))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update member role: %w", err)
	}
	return m, nil
}

// RemoveMember deletes the membership row.
func (s *PostgresStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
	if _, err := s.tx.Conn(ctx).Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID); err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	return nil
}

// CountAdmins returns how many admin rows the group has.
func (s *PostgresStore) CountAdmins(ctx context.Context, groupID int64) (int, error) {
	var n int
	err := s.tx.Conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND role = 'admin'`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

// FindAdminByGroup returns the admin row or nil.
func (s *PostgresStore) FindAdminByGroup(ctx context.Context, groupID int64) (*models.GroupMember, error) {
	q := `SELECT ` + memberColumns + ` FROM group_members m WHERE m.group_id = $1 AND m.role = 'admin' LIMIT 1`
	m, err := scanMember(s.tx.Conn(ctx).QueryRow(ctx, q, groupID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find group admin: %w", err)
	}
	return m, nil
}

// TransferOwnership runs the demote and promote writes in one transaction.
// Each write must touch exactly one row or the whole transfer is rolled back.
func (s *PostgresStore) TransferOwnership(ctx context.Context, groupID, fromUserID, toUserID int64) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		conn := s.tx.Conn(ctx)
		tag, err := conn.Exec(ctx, `UPDATE group_members SET role = 'moderator', updated_at = NOW()
			WHERE group_id = $1 AND user_id = $2 AND role = 'admin'`, groupID, fromUserID)
		if err != nil {
			return fmt.Errorf("demote admin: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrCannotTransferOwnership
		}
		tag, err = conn.Exec(ctx, `UPDATE group_members SET role = 'admin', updated_at = NOW()
			WHERE group_id = $1 AND user_id = $2 AND role <> 'admin'`, groupID, toUserID)
		if err != nil {
			return fmt.Errorf("promote member: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrCannotTransferOwnership
		}
		return nil
	})
}

// GetGroupWithMember fetches the group and the user's membership in one query.
func (s *PostgresStore) GetGroupWithMember(ctx context.Context, groupID, userID int64) (*models.GroupWithMember, error) {
	const q = `SELECT g.id, g.name, g.description, g.avatar_url, g.created_at, g.updated_at,
		m.id, m.group_id, m.user_id, m.role, m.created_at, m.updated_at
		FROM groups g
		LEFT JOIN group_members m ON m.group_id = g.id AND m.user_id = $2
		WHERE g.id = $1`
	var (
		out                models.GroupWithMember
		memberID, mGroupID *int64
		mUserID            *int64
		role               *string
		mCreated, mUpdated *time.Time
	)
	err := s.tx.Conn(ctx).QueryRow(ctx, q, groupID, userID).Scan(
		&out.Group.ID, &out.Group.Name, &out.Group.Description, &out.Group.AvatarURL, &out.Group.CreatedAt, &out.Group.UpdatedAt,
		&memberID, &mGroupID, &mUserID, &role, &mCreated, &mUpdated)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group with member: %w", err)
	}
	if memberID != nil {
		out.Member = &models.GroupMember{
			ID:        *memberID,
			GroupID:   *mGroupID,
			UserID:    *mUserID,
			Role:      models.GroupMemberRole(*role),
			CreatedAt: *mCreated,
			UpdatedAt: *mUpdated,
		}
	}
	return &out, nil
}

// RunInTx runs fn in a transaction shared by every store call made with its ctx.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.RunInTx(ctx, fn)
}

// WithGroupLock runs fn in a transaction that holds a row lock on the group.
// A missing group is not an error here; fn sees it through FindGroupByID.
func (s *PostgresStore) WithGroupLock(ctx context.Context, groupID int64, fn func(ctx context.Context) error) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.tx.Conn(ctx).Exec(ctx, `SELECT 1 FROM groups WHERE id = $1 FOR UPDATE`, groupID); err != nil {
			return fmt.Errorf("lock group: %w", err)
		}
		return fn(ctx)
	})
}
