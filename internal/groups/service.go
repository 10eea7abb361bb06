package groups

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/models"
)

// CreateGroupInput is the payload for creating a group.
type CreateGroupInput struct {
	Name        string
	Description *string
	AvatarURL   *string
}

// AddMemberInput is the payload for adding a member. Role defaults to member.
type AddMemberInput struct {
	UserID int64
	Role   *models.GroupMemberRole
}

// Service enforces group membership rules. Every operation checks existence,
// then the caller's authorization, then state invariants, and only then writes.
// Role-mutating operations run under the store's per-group lock so their checks
// and writes cannot interleave with another mutation on the same group.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates the group membership service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Create makes a new group with userID as its sole admin.
func (s *Service) Create(ctx context.Context, userID int64, in CreateGroupInput) (*models.Group, error) {
	g := &models.Group{Name: in.Name, Description: in.Description, AvatarURL: in.AvatarURL}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateGroup(ctx, g); err != nil {
			return err
		}
		return s.store.AddMember(ctx, &models.GroupMember{
			GroupID: g.ID,
			UserID:  userID,
			Role:    models.GroupRoleAdmin,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("group created", zap.Int64("group_id", g.ID), zap.Int64("user_id", userID))
	return g, nil
}

// FindAllGroups lists every group. Callers gate this to platform admins.
func (s *Service) FindAllGroups(ctx context.Context) ([]models.Group, error) {
	return s.store.FindAllGroups(ctx)
}

// FindUserGroups lists userID's groups in join order.
func (s *Service) FindUserGroups(ctx context.Context, userID int64) ([]models.Group, error) {
	return s.store.FindGroupsByUserID(ctx, userID)
}

// AdministeredGroups lists the groups userID is the admin of. Account deletion
// calls it inside its transaction so no transfer can make the user an admin meanwhile.
func (s *Service) AdministeredGroups(ctx context.Context, userID int64) ([]models.Group, error) {
	return s.store.FindGroupsAdministeredBy(ctx, userID)
}

// FindOne returns the group if userID is a member of it.
func (s *Service) FindOne(ctx context.Context, id, userID int64) (*models.Group, error) {
	gm, err := s.store.GetGroupWithMember(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if gm == nil {
		return nil, groupNotFound(id)
	}
	if gm.Member == nil {
		return nil, ErrNotGroupMember
	}
	return &gm.Group, nil
}

// Update patches the group's name, description and avatar. Only provided fields
// change. It returns the group after and before the patch so callers can release
// what the patch replaced.
func (s *Service) Update(ctx context.Context, id, userID int64, patch models.GroupPatch) (updated, previous *models.Group, err error) {
	err = s.store.WithGroupLock(ctx, id, func(ctx context.Context) error {
		gm, err := s.store.GetGroupWithMember(ctx, id, userID)
		if err != nil {
			return err
		}
		if gm == nil {
			return groupNotFound(id)
		}
		if gm.Member == nil || !gm.Member.Role.CanModerate() {
			return ErrNotGroupModerator
		}
		previous = &gm.Group
		if patch.Empty() {
			updated = &gm.Group
			return nil
		}
		updated, err = s.store.UpdateGroup(ctx, id, patch)
		if err != nil {
			return err
		}
		if updated == nil {
			return groupNotFound(id)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if !patch.Empty() {
		s.logger.Info("group updated", zap.Int64("group_id", id), zap.Int64("user_id", userID))
	}
	return updated, previous, nil
}

// Remove deletes the group and, by cascade, its members and movies. Admin only.
// It returns the deleted group so callers can release resources it referenced.
func (s *Service) Remove(ctx context.Context, id, userID int64) (*models.Group, error) {
	var deleted *models.Group
	err := s.store.WithGroupLock(ctx, id, func(ctx context.Context) error {
		gm, err := s.store.GetGroupWithMember(ctx, id, userID)
		if err != nil {
			return err
		}
		if gm == nil {
			return groupNotFound(id)
		}
		if gm.Member == nil || !gm.Member.Role.IsAdmin() {
			return ErrNotGroupAdmin
		}
		if err := s.store.DeleteGroup(ctx, id); err != nil {
			return err
		}
		deleted = &gm.Group
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("group deleted", zap.Int64("group_id", id), zap.Int64("user_id", userID))
	return deleted, nil
}

// AddMember adds in.UserID to the group. Moderators may add plain members;
// only the admin may add moderators; nobody may add a second admin.
func (s *Service) AddMember(ctx context.Context, groupID int64, in AddMemberInput, requesterID int64) (*models.GroupMember, error) {
	role := models.GroupRoleMember
	if in.Role != nil {
		role = *in.Role
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	member := &models.GroupMember{GroupID: groupID, UserID: in.UserID, Role: role}
	err := s.store.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		requester, err := s.requireMember(ctx, groupID, requesterID)
		if err != nil {
			if errors.Is(err, ErrNotGroupMember) {
				return ErrNotGroupModerator
			}
			return err
		}
		if !requester.Role.CanModerate() {
			return ErrNotGroupModerator
		}
		if role == models.GroupRoleModerator && !requester.Role.IsAdmin() {
			return ErrNotGroupAdmin
		}
		if role == models.GroupRoleAdmin {
			return ErrOnlyOneAdmin
		}
		existing, err := s.store.FindMember(ctx, groupID, in.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrUserAlreadyMember
		}
		return s.store.AddMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("group member added",
		zap.Int64("group_id", groupID),
		zap.Int64("user_id", in.UserID),
		zap.Int64("requester_id", requesterID),
		zap.String("role", string(role)),
	)
	return member, nil
}

// RemoveMember removes targetUserID from the group. The admin can never be removed;
// moderators may remove plain members; removing a moderator takes the admin.
func (s *Service) RemoveMember(ctx context.Context, groupID, targetUserID, requesterID int64) error {
	err := s.store.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		requester, err := s.requireMember(ctx, groupID, requesterID)
		if err != nil {
			return err
		}
		if !requester.Role.CanModerate() {
			return ErrNotGroupModerator
		}
		target, err := s.store.FindMember(ctx, groupID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrTargetNotGroupMember
		}
		if target.Role.IsAdmin() {
			return ErrCannotRemoveGroupAdmin
		}
		if target.Role == models.GroupRoleModerator && !requester.Role.IsAdmin() {
			return ErrNotGroupAdmin
		}
		return s.store.RemoveMember(ctx, groupID, targetUserID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("group member removed",
		zap.Int64("group_id", groupID),
		zap.Int64("user_id", targetUserID),
		zap.Int64("requester_id", requesterID),
	)
	return nil
}

// UpdateMemberRole changes targetUserID's role. Admin only. Promotion to admin is
// rejected whenever the group already has an admin, so a new admin is only ever
// created through TransferOwnership.
func (s *Service) UpdateMemberRole(ctx context.Context, groupID, targetUserID int64, role models.GroupMemberRole, requesterID int64) (*models.GroupMember, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	var updated *models.GroupMember
	err := s.store.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		requester, err := s.requireMember(ctx, groupID, requesterID)
		if err != nil {
			if errors.Is(err, ErrNotGroupMember) {
				return ErrNotGroupAdmin
			}
			return err
		}
		if !requester.Role.IsAdmin() {
			return ErrNotGroupAdmin
		}
		target, err := s.store.FindMember(ctx, groupID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrTargetNotGroupMember
		}
		if role == models.GroupRoleAdmin {
			admins, err := s.store.CountAdmins(ctx, groupID)
			if err != nil {
				return err
			}
			if admins > 0 {
				return ErrOnlyOneAdmin
			}
		}
		if target.Role.IsAdmin() {
			return ErrCannotModifyOwnerRole
		}
		updated, err = s.store.UpdateMemberRole(ctx, groupID, targetUserID, role)
		if err != nil {
			return err
		}
		if updated == nil {
			return ErrTargetNotGroupMember
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("group member role updated",
		zap.Int64("group_id", groupID),
		zap.Int64("user_id", targetUserID),
		zap.Int64("requester_id", requesterID),
		zap.String("role", string(role)),
	)
	return updated, nil
}

// TransferOwnership hands the admin role to targetUserID and demotes the
// requester to moderator in one atomic step.
func (s *Service) TransferOwnership(ctx context.Context, groupID, targetUserID, requesterID int64) error {
	err := s.store.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		requester, err := s.requireMember(ctx, groupID, requesterID)
		if err != nil {
			if errors.Is(err, ErrNotGroupMember) {
				return ErrOnlyAdminCanTransfer
			}
			return err
		}
		if !requester.Role.IsAdmin() {
			return ErrOnlyAdminCanTransfer
		}
		if targetUserID == requesterID {
			return ErrCannotTransferToSelf
		}
		target, err := s.store.FindMember(ctx, groupID, targetUserID)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrTargetNotGroupMember
		}
		admins, err := s.store.CountAdmins(ctx, groupID)
		if err != nil {
			return err
		}
		if admins != 1 {
			return ErrCannotTransferOwnership
		}
		return s.store.TransferOwnership(ctx, groupID, requesterID, targetUserID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("group ownership transferred",
		zap.Int64("group_id", groupID),
		zap.Int64("user_id", targetUserID),
		zap.Int64("requester_id", requesterID),
	)
	return nil
}

// LeaveGroup removes the caller's own membership. The sole admin cannot leave.
func (s *Service) LeaveGroup(ctx context.Context, groupID, userID int64) error {
	err := s.store.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
		member, err := s.requireMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member.Role.IsAdmin() {
			admins, err := s.store.CountAdmins(ctx, groupID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return ErrAdminMustTransfer
			}
		}
		return s.store.RemoveMember(ctx, groupID, userID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("group member left", zap.Int64("group_id", groupID), zap.Int64("user_id", userID))
	return nil
}

// GetMembers lists the group's members with user summaries.
func (s *Service) GetMembers(ctx context.Context, groupID, userID int64) ([]models.GroupMemberWithUser, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	return s.store.FindMembersByGroupWithUsers(ctx, groupID)
}

// GetMemberMe returns the caller's own membership row.
func (s *Service) GetMemberMe(ctx context.Context, groupID, userID int64) (*models.GroupMemberWithUser, error) {
	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}
	m, err := s.store.FindMemberWithUser(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotGroupMember
	}
	return m, nil
}

// IsMember reports whether userID has any role in the group.
func (s *Service) IsMember(ctx context.Context, groupID, userID int64) bool {
	return s.hasRole(ctx, groupID, userID, models.GroupRoleMember)
}

// IsModerator reports whether userID is exactly a moderator.
func (s *Service) IsModerator(ctx context.Context, groupID, userID int64) bool {
	m := s.member(ctx, groupID, userID)
	return m != nil && m.Role == models.GroupRoleModerator
}

// IsAdmin reports whether userID is the group admin.
func (s *Service) IsAdmin(ctx context.Context, groupID, userID int64) bool {
	return s.hasRole(ctx, groupID, userID, models.GroupRoleAdmin)
}

// CanModerate reports whether userID is a moderator or the admin.
func (s *Service) CanModerate(ctx context.Context, groupID, userID int64) bool {
	return s.hasRole(ctx, groupID, userID, models.GroupRoleModerator)
}

func (s *Service) hasRole(ctx context.Context, groupID, userID int64, min models.GroupMemberRole) bool {
	m := s.member(ctx, groupID, userID)
	return m != nil && m.Role.AtLeast(min)
}

// member swallows store errors: predicates answer false rather than fail.
func (s *Service) member(ctx context.Context, groupID, userID int64) *models.GroupMember {
	m, err := s.store.FindMember(ctx, groupID, userID)
	if err != nil {
		s.logger.Warn("membership lookup failed",
			zap.Int64("group_id", groupID),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	return m
}

// requireMember checks the group exists and userID belongs to it.
func (s *Service) requireMember(ctx context.Context, groupID, userID int64) (*models.GroupMember, error) {
	gm, err := s.store.GetGroupWithMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if gm == nil {
		return nil, groupNotFound(groupID)
	}
	if gm.Member == nil {
		return nil, ErrNotGroupMember
	}
	return gm.Member, nil
}
