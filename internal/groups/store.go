package groups

import (
	"context"

	"github.com/movieclub/backend/internal/models"
)

// Store is the persistence port for groups and membership rows.
// Lookups return nil or an empty slice when nothing matches; absence is not an error here.
type Store interface {
	CreateGroup(ctx context.Context, g *models.Group) error
	FindGroupByID(ctx context.Context, id int64) (*models.Group, error)
	FindAllGroups(ctx context.Context) ([]models.Group, error)
	// FindGroupsByUserID returns the groups userID belongs to, oldest membership first.
	FindGroupsByUserID(ctx context.Context, userID int64) ([]models.Group, error)
	UpdateGroup(ctx context.Context, id int64, patch models.GroupPatch) (*models.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	// FindGroupsAdministeredBy returns the groups where userID is the admin. Inside a
	// transaction it also locks all of userID's membership rows until commit.
	FindGroupsAdministeredBy(ctx context.Context, userID int64) ([]models.Group, error)

	// AddMember inserts a membership row. A duplicate (groupId, userId) yields ErrUserAlreadyMember.
	AddMember(ctx context.Context, m *models.GroupMember) error
	FindMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error)
	FindMemberWithUser(ctx context.Context, groupID, userID int64) (*models.GroupMemberWithUser, error)
	FindMembersByGroup(ctx context.Context, groupID int64) ([]models.GroupMember, error)
	FindMembersByGroupWithUsers(ctx context.Context, groupID int64) ([]models.GroupMemberWithUser, error)
	UpdateMemberRole(ctx context.Context, groupID, userID int64, role models.GroupMemberRole) (*models.GroupMember, error)
	RemoveMember(ctx context.Context, groupID, userID int64) error
	CountAdmins(ctx context.Context, groupID int64) (int, error)
	FindAdminByGroup(ctx context.Context, groupID int64) (*models.GroupMember, error)

	// TransferOwnership demotes fromUserID to moderator and promotes toUserID to admin atomically.
	TransferOwnership(ctx context.Context, groupID, fromUserID, toUserID int64) error
	// GetGroupWithMember fetches the group and userID's membership in one round trip.
	GetGroupWithMember(ctx context.Context, groupID, userID int64) (*models.GroupWithMember, error)

	// RunInTx runs fn in a transaction; store calls made with the ctx passed to fn join it.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	// WithGroupLock runs fn in a transaction holding an exclusive lock on the group,
	// serializing role-mutating operations on that group.
	WithGroupLock(ctx context.Context, groupID int64, fn func(ctx context.Context) error) error
}
