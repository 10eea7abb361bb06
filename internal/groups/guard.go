package groups

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/pkg/response"
)

// ContextGroupID is the gin context key holding the group id resolved by a guard.
const ContextGroupID = "group_id"

// MembershipChecker answers role questions about a user in a group.
// Implementations never fail; an unknown group or user is simply "no".
type MembershipChecker interface {
	IsMember(ctx context.Context, groupID, userID int64) bool
	CanModerate(ctx context.Context, groupID, userID int64) bool
	IsAdmin(ctx context.Context, groupID, userID int64) bool
}

// RequireGroupMember allows the request only if the caller belongs to the group in the path.
func RequireGroupMember(checker MembershipChecker) gin.HandlerFunc {
	return requireGroup(checker.IsMember, ErrNotGroupMember)
}

// RequireGroupModerator allows the request only if the caller moderates the group in the path.
func RequireGroupModerator(checker MembershipChecker) gin.HandlerFunc {
	return requireGroup(checker.CanModerate, ErrNotGroupModerator)
}

// RequireGroupAdmin allows the request only if the caller is the admin of the group in the path.
func RequireGroupAdmin(checker MembershipChecker) gin.HandlerFunc {
	return requireGroup(checker.IsAdmin, ErrNotGroupAdmin)
}

// Call after middleware.JWT.
func requireGroup(allowed func(ctx context.Context, groupID, userID int64) bool, denied error) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID, ok := GroupIDParam(c)
		if !ok {
			response.BadRequest(c, "invalid group id")
			c.Abort()
			return
		}
		userID, ok := middleware.UserID(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !allowed(c.Request.Context(), groupID, userID) {
			response.Error(c, denied)
			c.Abort()
			return
		}
		c.Set(ContextGroupID, groupID)
		c.Next()
	}
}

// GroupIDParam resolves the group id from the groupId or id path parameter.
func GroupIDParam(c *gin.Context) (int64, bool) {
	raw := c.Param("groupId")
	if raw == "" {
		raw = c.Param("id")
	}
	return parseID(raw)
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
