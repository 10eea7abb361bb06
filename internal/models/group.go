package models

import "time"

// GroupMemberRole is a member's role inside one group.
type GroupMemberRole string

const (
	GroupRoleAdmin     GroupMemberRole = "admin"
	GroupRoleModerator GroupMemberRole = "moderator"
	GroupRoleMember    GroupMemberRole = "member"
)

// Level orders roles by capability: member < moderator < admin.
// Unknown roles have level 0.
func (r GroupMemberRole) Level() int {
	switch r {
	case GroupRoleAdmin:
		return 3
	case GroupRoleModerator:
		return 2
	case GroupRoleMember:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is one of the three group roles.
func (r GroupMemberRole) Valid() bool {
	return r.Level() > 0
}

// AtLeast reports whether r grants every capability of min.
func (r GroupMemberRole) AtLeast(min GroupMemberRole) bool {
	return r.Valid() && r.Level() >= min.Level()
}

// CanModerate is true for moderators and the admin.
func (r GroupMemberRole) CanModerate() bool {
	return r.AtLeast(GroupRoleModerator)
}

// IsAdmin is true only for the group admin.
func (r GroupMemberRole) IsAdmin() bool {
	return r == GroupRoleAdmin
}

// Group is a named collection of users sharing tracked movies.
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	AvatarURL   *string   `json:"avatarUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GroupPatch carries the fields of a partial group update. A nil Name and unset
// optional fields are left unchanged; a set optional field with a nil Value clears it.
type GroupPatch struct {
	Name        *string
	Description OptionalString
	AvatarURL   OptionalString
}

// Empty reports whether the patch changes nothing.
func (p GroupPatch) Empty() bool {
	return p.Name == nil && !p.Description.Set && !p.AvatarURL.Set
}

// Apply returns g with the patch applied.
func (p GroupPatch) Apply(g Group) Group {
	if p.Name != nil {
		g.Name = *p.Name
	}
	g.Description = p.Description.Or(g.Description)
	g.AvatarURL = p.AvatarURL.Or(g.AvatarURL)
	return g
}

// GroupMember is the (group, user, role) association row.
type GroupMember struct {
	ID        int64           `json:"id"`
	GroupID   int64           `json:"groupId"`
	UserID    int64           `json:"userId"`
	Role      GroupMemberRole `json:"role"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// GroupMemberWithUser is a membership row joined with the user summary.
type GroupMemberWithUser struct {
	GroupMember
	User UserSummary `json:"user"`
}

// GroupWithMember is a group plus the caller's membership row, if any.
type GroupWithMember struct {
	Group  Group
	Member *GroupMember
}
