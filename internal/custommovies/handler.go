package custommovies

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/groups"
	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/response"
)

// Handler serves custom movie endpoints.
type Handler struct {
	svc     *Service
	members groups.MembershipChecker
	logger  *zap.Logger
}

// NewHandler creates a custom movies handler gated by members.
func NewHandler(svc *Service, members groups.MembershipChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, members: members, logger: logger}
}

// ListQuery is the query string of the list endpoints.
type ListQuery struct {
	Query string `form:"query" binding:"max=200"`
	Page  int    `form:"page" binding:"omitempty,min=1"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// CreateRequest is the body for POST /groups/:id/custom-movies.
type CreateRequest struct {
	Title       string              `json:"title" binding:"required,max=255"`
	PosterPath  *string             `json:"posterPath" binding:"omitempty,max=512"`
	Overview    *string             `json:"overview"`
	ReleaseYear *int                `json:"releaseYear" binding:"omitempty,min=1800"`
	Runtime     *int                `json:"runtime" binding:"omitempty,min=0"`
	Status      *models.MovieStatus `json:"status" binding:"omitempty,oneof=tracking planned watched"`
	PlannedDate *time.Time          `json:"plannedDate"`
	WatchedDate *time.Time          `json:"watchedDate"`
}

// UpdateRequest is the body for PATCH /groups/:id/custom-movies/:customMovieId.
// An explicit null date clears it.
type UpdateRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=255"`
	PosterPath  *string `json:"posterPath" binding:"omitempty,max=512"`
	Overview    *string `json:"overview"`
	ReleaseYear *int    `json:"releaseYear" binding:"omitempty,min=1800"`
	Runtime     *int    `json:"runtime" binding:"omitempty,min=0"`
	models.StatusPatch
}

// RegisterRoutes mounts the custom movie routes on an authenticated router group.
func (h *Handler) RegisterRoutes(api gin.IRoutes) {
	member := groups.RequireGroupMember(h.members)
	moderator := groups.RequireGroupModerator(h.members)

	api.GET("/custom-movies", h.ListMine)
	api.GET("/groups/:id/custom-movies", member, h.List)
	api.POST("/groups/:id/custom-movies", moderator, h.Create)
	api.GET("/groups/:id/custom-movies/:customMovieId", member, h.Get)
	api.PATCH("/groups/:id/custom-movies/:customMovieId", moderator, h.Update)
	api.DELETE("/groups/:id/custom-movies/:customMovieId", moderator, h.Delete)
}

// movieIDs reads the group and custom movie ids from the path.
func movieIDs(c *gin.Context) (groupID, id int64, ok bool) {
	groupID, ok = groups.GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return 0, 0, false
	}
	id, err := strconv.ParseInt(c.Param("customMovieId"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid custom movie id")
		return 0, 0, false
	}
	return groupID, id, true
}

// ListMine handles GET /custom-movies.
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	page, err := h.svc.ListForUser(c.Request.Context(), userID, q.Query, q.Page, q.Limit)
	if err != nil {
		h.fail(c, "list custom movies of user", err)
		return
	}
	response.OK(c, page)
}

// List handles GET /groups/:id/custom-movies.
func (h *Handler) List(c *gin.Context) {
	groupID, ok := groups.GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return
	}
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	page, err := h.svc.List(c.Request.Context(), groupID, q.Query, q.Page, q.Limit)
	if err != nil {
		h.fail(c, "list custom movies", err)
		return
	}
	response.OK(c, page)
}

// Create handles POST /groups/:id/custom-movies.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	groupID, ok := groups.GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.Create(c.Request.Context(), groupID, &userID, CreateInput{
		Title:       req.Title,
		PosterPath:  req.PosterPath,
		Overview:    req.Overview,
		ReleaseYear: req.ReleaseYear,
		Runtime:     req.Runtime,
		Status:      req.Status,
		PlannedDate: req.PlannedDate,
		WatchedDate: req.WatchedDate,
	})
	if err != nil {
		h.fail(c, "create custom movie", err)
		return
	}
	response.Created(c, m)
}

// Get handles GET /groups/:id/custom-movies/:customMovieId.
func (h *Handler) Get(c *gin.Context) {
	groupID, id, ok := movieIDs(c)
	if !ok {
		return
	}
	m, err := h.svc.Get(c.Request.Context(), groupID, id)
	if err != nil {
		h.fail(c, "get custom movie", err)
		return
	}
	response.OK(c, m)
}

// Update handles PATCH /groups/:id/custom-movies/:customMovieId.
func (h *Handler) Update(c *gin.Context) {
	groupID, id, ok := movieIDs(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.Update(c.Request.Context(), groupID, id, UpdateInput{
		Title:       req.Title,
		PosterPath:  req.PosterPath,
		Overview:    req.Overview,
		ReleaseYear: req.ReleaseYear,
		Runtime:     req.Runtime,
		StatusPatch: req.StatusPatch,
	})
	if err != nil {
		h.fail(c, "update custom movie", err)
		return
	}
	response.OK(c, m)
}

// Delete handles DELETE /groups/:id/custom-movies/:customMovieId.
func (h *Handler) Delete(c *gin.Context) {
	groupID, id, ok := movieIDs(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), groupID, id); err != nil {
		h.fail(c, "delete custom movie", err)
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
