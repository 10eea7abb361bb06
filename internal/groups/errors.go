package groups

import "github.com/movieclub/backend/internal/apperr"

var (
	ErrGroupNotFound = apperr.NotFound("group_not_found", "Group not found")
	ErrUserNotFound  = apperr.NotFound("user_not_found", "User not found")

	ErrNotGroupMember         = apperr.Forbidden("not_group_member", "You are not a member of this group")
	ErrNotGroupModerator      = apperr.Forbidden("not_group_moderator", "Requires group admin or moderator role")
	ErrNotGroupAdmin          = apperr.Forbidden("not_group_admin", "Requires group admin role")
	ErrCannotRemoveGroupAdmin = apperr.Forbidden("cannot_remove_group_admin", "Cannot remove group admin")
	ErrOnlyAdminCanTransfer   = apperr.Forbidden("only_admin_can_transfer", "Only the group admin can transfer ownership")
	ErrCannotModifyOwnerRole  = apperr.Forbidden("cannot_modify_owner_role", "Cannot modify the role of the group owner")

	ErrUserAlreadyMember       = apperr.Conflict("user_already_member", "User is already a member of this group")
	ErrOnlyOneAdmin            = apperr.Conflict("only_one_admin", "Group already has an admin")
	ErrAdminMustTransfer       = apperr.Conflict("only_one_admin", "Cannot leave group - admin must transfer ownership first")
	ErrCannotTransferOwnership = apperr.Conflict("cannot_transfer_ownership", "Ownership cannot be transferred in the current group state")

	ErrCannotTransferToSelf = apperr.BadRequest("cannot_transfer_to_self", "Cannot transfer admin rights to yourself")
	ErrTargetNotGroupMember = apperr.BadRequest("target_not_group_member", "Target user is not a member of this group")
	ErrInvalidRole          = apperr.BadRequest("invalid_group_role", "role must be one of admin, moderator, member")
)

func groupNotFound(id int64) error {
	return ErrGroupNotFound.WithMessage("Group with id %d not found", id)
}
