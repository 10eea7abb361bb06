package groups

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/response"
)

// AvatarReleaser is told about avatars a group no longer references.
type AvatarReleaser interface {
	ReleaseAvatar(ctx context.Context, groupID int64, avatarURL string) error
}

// Handler handles group and membership HTTP endpoints.
type Handler struct {
	svc     *Service
	avatars AvatarReleaser
	logger  *zap.Logger
}

// NewHandler creates a groups handler. avatars may be nil.
func NewHandler(svc *Service, avatars AvatarReleaser, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, avatars: avatars, logger: logger}
}

// CreateGroupRequest is the body for POST /groups.
type CreateGroupRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=256"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	AvatarURL   *string `json:"avatarUrl" binding:"omitempty,url,max=512"`
}

// UpdateGroupRequest is the body for PATCH /groups/:id. Omitted fields are kept;
// an explicit null clears description or avatarUrl.
type UpdateGroupRequest struct {
	Name        *string               `json:"name" binding:"omitempty,min=1,max=256"`
	Description models.OptionalString `json:"description"`
	AvatarURL   models.OptionalString `json:"avatarUrl"`
}

// validate checks the nullable fields, which binding tags cannot reach.
func (r UpdateGroupRequest) validate() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if r.Description.Value != nil {
		if err := v.Var(*r.Description.Value, "max=2000"); err != nil {
			return fmt.Errorf("description: %w", err)
		}
	}
	if r.AvatarURL.Value != nil {
		if err := v.Var(*r.AvatarURL.Value, "url,max=512"); err != nil {
			return fmt.Errorf("avatarUrl: %w", err)
		}
	}
	return nil
}

// AddMemberRequest is the body for POST /groups/:id/members.
type AddMemberRequest struct {
	UserID int64                   `json:"userId" binding:"required,gt=0"`
	Role   *models.GroupMemberRole `json:"role" binding:"omitempty,oneof=admin moderator member"`
}

// UpdateMemberRoleRequest is the body for PATCH /groups/:id/members/:userId.
type UpdateMemberRoleRequest struct {
	Role models.GroupMemberRole `json:"role" binding:"required,oneof=admin moderator member"`
}

// TransferOwnershipRequest is the body for POST /groups/:id/transfer-ownership.
type TransferOwnershipRequest struct {
	TargetUserID int64 `json:"targetUserId" binding:"required,gt=0"`
}

// RegisterRoutes mounts the group routes on an authenticated router group.
func (h *Handler) RegisterRoutes(api gin.IRoutes) {
	member := RequireGroupMember(h.svc)
	moderator := RequireGroupModerator(h.svc)
	admin := RequireGroupAdmin(h.svc)
	platformAdmin := middleware.RequireRole(string(models.UserRoleAdmin))

	api.GET("/groups", h.ListMine)
	api.GET("/groups/all", platformAdmin, h.ListAll)
	api.GET("/groups/user/:userId", platformAdmin, h.ListByUser)
	api.POST("/groups", h.Create)
	api.GET("/groups/:id", member, h.Get)
	api.PATCH("/groups/:id", moderator, h.Update)
	api.DELETE("/groups/:id", admin, h.Delete)

	api.GET("/groups/:id/members", member, h.Members)
	api.GET("/groups/:id/members/me", member, h.MemberMe)
	api.POST("/groups/:id/members", moderator, h.AddMember)
	api.PATCH("/groups/:id/members/:userId", admin, h.UpdateMemberRole)
	api.DELETE("/groups/:id/members/me", h.Leave)
	api.DELETE("/groups/:id/members/:userId", moderator, h.RemoveMember)
	api.POST("/groups/:id/transfer-ownership", admin, h.TransferOwnership)
}

// ids reads the caller and the group id, writing the error response when either is missing.
func ids(c *gin.Context) (userID, groupID int64, ok bool) {
	userID, ok = middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return 0, 0, false
	}
	groupID, ok = GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return 0, 0, false
	}
	return userID, groupID, true
}

// ListMine handles GET /groups.
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.svc.FindUserGroups(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "list user groups", err)
		return
	}
	response.OK(c, list)
}

// ListAll handles GET /groups/all (platform admin).
func (h *Handler) ListAll(c *gin.Context) {
	list, err := h.svc.FindAllGroups(c.Request.Context())
	if err != nil {
		h.fail(c, "list all groups", err)
		return
	}
	response.OK(c, list)
}

// ListByUser handles GET /groups/user/:userId (platform admin).
func (h *Handler) ListByUser(c *gin.Context) {
	userID, ok := parseID(c.Param("userId"))
	if !ok {
		response.BadRequest(c, "invalid user id")
		return
	}
	list, err := h.svc.FindUserGroups(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "list groups by user", err)
		return
	}
	response.OK(c, list)
}

// Create handles POST /groups. The caller becomes the group admin.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	g, err := h.svc.Create(c.Request.Context(), userID, CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		h.fail(c, "create group", err)
		return
	}
	response.Created(c, g)
}

// Get handles GET /groups/:id.
func (h *Handler) Get(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	g, err := h.svc.FindOne(c.Request.Context(), groupID, userID)
	if err != nil {
		h.fail(c, "get group", err)
		return
	}
	response.OK(c, g)
}

// Update handles PATCH /groups/:id. A replaced or cleared avatar is released
// once the update has committed.
func (h *Handler) Update(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	g, prev, err := h.svc.Update(c.Request.Context(), groupID, userID, models.GroupPatch{
		Name:        req.Name,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		h.fail(c, "update group", err)
		return
	}
	if old := avatarOf(prev); h.avatars != nil && old != "" && old != avatarOf(g) {
		if err := h.avatars.ReleaseAvatar(c.Request.Context(), g.ID, old); err != nil {
			h.logger.Warn("release replaced avatar", zap.Int64("group_id", g.ID), zap.Error(err))
		}
	}
	response.OK(c, g)
}

func avatarOf(g *models.Group) string {
	if g == nil || g.AvatarURL == nil {
		return ""
	}
	return *g.AvatarURL
}

// Delete handles DELETE /groups/:id.
func (h *Handler) Delete(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	g, err := h.svc.Remove(c.Request.Context(), groupID, userID)
	if err != nil {
		h.fail(c, "delete group", err)
		return
	}
	if url := avatarOf(g); h.avatars != nil && url != "" {
		if err := h.avatars.ReleaseAvatar(c.Request.Context(), g.ID, url); err != nil {
			h.logger.Warn("release group avatar", zap.Int64("group_id", g.ID), zap.Error(err))
		}
	}
	response.NoContent(c)
}

// Members handles GET /groups/:id/members.
func (h *Handler) Members(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	list, err := h.svc.GetMembers(c.Request.Context(), groupID, userID)
	if err != nil {
		h.fail(c, "list group members", err)
		return
	}
	response.OK(c, list)
}

// MemberMe handles GET /groups/:id/members/me.
func (h *Handler) MemberMe(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	m, err := h.svc.GetMemberMe(c.Request.Context(), groupID, userID)
	if err != nil {
		h.fail(c, "get own membership", err)
		return
	}
	response.OK(c, m)
}

// AddMember handles POST /groups/:id/members.
func (h *Handler) AddMember(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.AddMember(c.Request.Context(), groupID, AddMemberInput{UserID: req.UserID, Role: req.Role}, userID)
	if err != nil {
		h.fail(c, "add group member", err)
		return
	}
	response.Created(c, m)
}

// UpdateMemberRole handles PATCH /groups/:id/members/:userId.
func (h *Handler) UpdateMemberRole(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	targetID, ok := parseID(c.Param("userId"))
	if !ok {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, err := h.svc.UpdateMemberRole(c.Request.Context(), groupID, targetID, req.Role, userID); err != nil {
		h.fail(c, "update member role", err)
		return
	}
	response.NoContent(c)
}

// Leave handles DELETE /groups/:id/members/me.
func (h *Handler) Leave(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	if err := h.svc.LeaveGroup(c.Request.Context(), groupID, userID); err != nil {
		h.fail(c, "leave group", err)
		return
	}
	response.NoContent(c)
}

// RemoveMember handles DELETE /groups/:id/members/:userId.
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	targetID, ok := parseID(c.Param("userId"))
	if !ok {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), groupID, targetID, userID); err != nil {
		h.fail(c, "remove group member", err)
		return
	}
	response.NoContent(c)
}

// TransferOwnership handles POST /groups/:id/transfer-ownership.
func (h *Handler) TransferOwnership(c *gin.Context) {
	userID, groupID, ok := ids(c)
	if !ok {
		return
	}
	var req TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.svc.TransferOwnership(c.Request.Context(), groupID, req.TargetUserID, userID); err != nil {
		h.fail(c, "transfer ownership", err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	if _, ok := apperr.As(err); !ok {
		h.logger.Error(op, zap.Error(err))
	}
	response.Error(c, err)
}
