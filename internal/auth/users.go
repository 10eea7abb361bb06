package auth

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/response"
	"github.com/movieclub/backend/pkg/utils"
)

// GroupOwnership reports which groups a user administers. *groups.Service satisfies it.
type GroupOwnership interface {
	AdministeredGroups(ctx context.Context, userID int64) ([]models.Group, error)
}

// TxRunner runs fn in one transaction carried by ctx.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CreateUserRequest is the body for POST /users.
type CreateUserRequest struct {
	Name     string          `json:"name" binding:"required,min=1,max=256"`
	Email    string          `json:"email" binding:"required,email"`
	Password string          `json:"password" binding:"required,min=8,max=72"`
	Role     models.UserRole `json:"role" binding:"omitempty,oneof=user admin"`
}

// UpdateUserRequest is the body for PATCH /users/:userId.
type UpdateUserRequest struct {
	Name     *string          `json:"name" binding:"omitempty,min=1,max=256"`
	Email    *string          `json:"email" binding:"omitempty,email"`
	Password *string          `json:"password" binding:"omitempty,min=8,max=72"`
	Role     *models.UserRole `json:"role" binding:"omitempty,oneof=user admin"`
}

// UserHandler serves account management under /users.
type UserHandler struct {
	users      UserStore
	groups     GroupOwnership
	tx         TxRunner
	bcryptCost int
	logger     *zap.Logger
}

// NewUserHandler creates the /users handler.
func NewUserHandler(users UserStore, groups GroupOwnership, tx TxRunner, bcryptCost int, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{users: users, groups: groups, tx: tx, bcryptCost: bcryptCost, logger: logger}
}

// RegisterRoutes mounts the account routes on an authenticated group.
func (h *UserHandler) RegisterRoutes(api gin.IRoutes) {
	api.GET("/users", requireAdmin, h.List)
	api.POST("/users", requireAdmin, h.Create)
	api.GET("/users/me", h.Me)
	api.GET("/users/:userId", h.Get)
	api.PATCH("/users/:userId", h.Update)
	api.DELETE("/users/:userId", h.Delete)
}

// caller reads the identity middleware.JWT stored on the context.
func caller(c *gin.Context) (int64, models.UserRole) {
	id, _ := c.Get("user_id")
	role, _ := c.Get("user_role")
	userID, _ := id.(int64)
	r, _ := role.(string)
	return userID, models.UserRole(r)
}

func requireAdmin(c *gin.Context) {
	if _, role := caller(c); role != models.UserRoleAdmin {
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
		return
	}
	c.Next()
}

// target parses :userId and checks the caller is that user or a platform admin.
func target(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid user id")
		return 0, false
	}
	self, role := caller(c)
	if self != id && role != models.UserRoleAdmin {
		response.Error(c, ErrNotAccountOwner)
		return 0, false
	}
	return id, true
}

// List handles GET /users (platform admin only).
func (h *UserHandler) List(c *gin.Context) {
	list, err := h.users.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list users", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}

// Create handles POST /users. Platform admins may create other admins.
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Role == "" {
		req.Role = models.UserRoleUser
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	existing, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("lookup user by email", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}
	if existing != nil {
		response.Error(c, ErrEmailTaken)
		return
	}
	hash, err := utils.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	user, err := h.users.Create(c.Request.Context(), strings.TrimSpace(req.Name), email, hash, req.Role)
	if err != nil {
		h.fail(c, "create user", err)
		return
	}
	h.logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	response.Created(c, user.ToPublic())
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	userID, _ := caller(c)
	if userID <= 0 {
		response.Unauthorized(c, "missing user context")
		return
	}
	h.show(c, userID)
}

// Get handles GET /users/:userId.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := target(c)
	if !ok {
		return
	}
	h.show(c, id)
}

func (h *UserHandler) show(c *gin.Context, id int64) {
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get user", err)
		return
	}
	if user == nil {
		response.Error(c, ErrUserNotFound)
		return
	}
	response.OK(c, user.ToPublic())
}

// Update handles PATCH /users/:userId. Only platform admins may change a role.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := target(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, role := caller(c); req.Role != nil && role != models.UserRoleAdmin {
		response.Forbidden(c, "only a platform admin may change roles")
		return
	}

	ctx := c.Request.Context()
	patch := models.UserPatch{Role: req.Role}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		patch.Name = &name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		existing, err := h.users.GetByEmail(ctx, email)
		if err != nil {
			h.fail(c, "lookup user by email", err)
			return
		}
		if existing != nil && existing.ID != id {
			response.Error(c, ErrEmailTaken)
			return
		}
		patch.Email = &email
	}
	if req.Password != nil {
		hash, err := utils.HashPassword(*req.Password, h.bcryptCost)
		if err != nil {
			response.Internal(c, "failed to hash password")
			return
		}
		patch.PasswordHash = &hash
	}

	user, err := h.users.Update(ctx, id, patch)
	if err != nil {
		h.fail(c, "update user", err)
		return
	}
	if user == nil {
		response.Error(c, ErrUserNotFound)
		return
	}
	response.OK(c, user.ToPublic())
}

// Delete handles DELETE /users/:userId. An account that still administers a
// group is refused; its groups would otherwise be left without an admin.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := target(c)
	if !ok {
		return
	}
	err := h.tx.RunInTx(c.Request.Context(), func(ctx context.Context) error {
		user, err := h.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		owned, err := h.groups.AdministeredGroups(ctx, id)
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return ErrUserOwnsGroups.WithMessage("user is the admin of %d group(s); transfer ownership or delete them first", len(owned))
		}
		deleted, err := h.users.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		h.fail(c, "delete user", err)
		return
	}
	h.logger.Info("user deleted", zap.Int64("user_id", id))
	response.NoContent(c)
}

func (h *UserHandler) fail(c *gin.Context, op string, err error) {
	if _, ok := apperr.As(err); !ok {
		h.logger.Error(op, zap.Error(err))
	}
	response.Error(c, err)
}
