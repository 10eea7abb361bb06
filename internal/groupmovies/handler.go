package groupmovies

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/groups"
	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/response"
)

// Handler serves the /groups/:id/movies endpoints.
type Handler struct {
	svc     *Service
	members groups.MembershipChecker
	logger  *zap.Logger
}

// NewHandler creates a group movies handler gated by members.
func NewHandler(svc *Service, members groups.MembershipChecker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, members: members, logger: logger}
}

// AddRequest is the body for POST /groups/:id/movies.
type AddRequest struct {
	MovieID    *int64  `json:"movieId" binding:"omitempty,gt=0"`
	ImdbID     *string `json:"imdbId" binding:"omitempty,max=32"`
	ExternalID *string `json:"externalId" binding:"omitempty,max=64"`
}

// EditRequest is the body for PATCH /groups/:id/movies/:movieId/edit.
type EditRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=255"`
	PosterPath  *string `json:"posterPath" binding:"omitempty,max=512"`
	Overview    *string `json:"overview"`
	ReleaseYear *int    `json:"releaseYear" binding:"omitempty,min=1800"`
	Runtime     *int    `json:"runtime" binding:"omitempty,min=0"`
	models.StatusPatch
}

// PageQuery is the query string of GET /groups/:id/movies.
type PageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// RegisterRoutes mounts the group movie routes on an authenticated router group.
func (h *Handler) RegisterRoutes(api gin.IRoutes) {
	member := groups.RequireGroupMember(h.members)
	moderator := groups.RequireGroupModerator(h.members)

	api.GET("/groups/:id/movies", member, h.List)
	api.POST("/groups/:id/movies", moderator, h.Add)
	api.GET("/groups/:id/movies/search", member, h.Search)
	api.GET("/groups/:id/movies/:movieId", member, h.Get)
	api.PATCH("/groups/:id/movies/:movieId", moderator, h.UpdateStatus)
	api.PATCH("/groups/:id/movies/:movieId/edit", moderator, h.EditToCustom)
	api.DELETE("/groups/:id/movies/:movieId", moderator, h.Delete)
}

func movieIDs(c *gin.Context) (groupID, movieID int64, ok bool) {
	groupID, ok = groups.GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return 0, 0, false
	}
	movieID, err := strconv.ParseInt(c.Param("movieId"), 10, 64)
	if err != nil || movieID <= 0 {
		response.BadRequest(c, "invalid movie id")
		return 0, 0, false
	}
	return groupID, movieID, true
}

// List handles GET /groups/:id/movies.
func (h *Handler) List(c *gin.Context) {
	groupID, ok := groups.GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return
	}
	var q PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	page, err := h.svc.List(c.Request.Context(), groupID, q.Page, q.Limit)
	if err != nil {
		h.fail(c, "list group movies", err)
		return
	}
	response.OK(c, page)
}

// Add handles POST /groups/:id/movies.
func (h *Handler) Add(c *gin.Context) {
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
	var req AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	gm, err := h.svc.Add(c.Request.Context(), groupID, userID, AddInput{
		MovieID:    req.MovieID,
		ImdbID:     req.ImdbID,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		h.fail(c, "add group movie", err)
		return
	}
	response.Created(c, gm)
}

// Search handles GET /groups/:id/movies/search?query=.
func (h *Handler) Search(c *gin.Context) {
	groupID, ok := groups.GroupIDParam(c)
	if !ok {
		response.BadRequest(c, "invalid group id")
		return
	}
	query := c.Query("query")
	if len(query) > 200 {
		response.BadRequest(c, "query is too long")
		return
	}
	res, err := h.svc.Search(c.Request.Context(), groupID, query)
	if err != nil {
		h.fail(c, "search group movies", err)
		return
	}
	response.OK(c, res)
}

// Get handles GET /groups/:id/movies/:movieId.
func (h *Handler) Get(c *gin.Context) {
	groupID, movieID, ok := movieIDs(c)
	if !ok {
		return
	}
	gm, err := h.svc.Get(c.Request.Context(), groupID, movieID)
	if err != nil {
		h.fail(c, "get group movie", err)
		return
	}
	response.OK(c, gm)
}

// UpdateStatus handles PATCH /groups/:id/movies/:movieId.
func (h *Handler) UpdateStatus(c *gin.Context) {
	groupID, movieID, ok := movieIDs(c)
	if !ok {
		return
	}
	var patch models.StatusPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if patch.Empty() {
		response.BadRequest(c, "nothing to update")
		return
	}
	gm, err := h.svc.UpdateStatus(c.Request.Context(), groupID, movieID, patch)
	if err != nil {
		h.fail(c, "update group movie status", err)
		return
	}
	response.OK(c, gm)
}

// EditToCustom handles PATCH /groups/:id/movies/:movieId/edit.
func (h *Handler) EditToCustom(c *gin.Context) {
	groupID, movieID, ok := movieIDs(c)
	if !ok {
		return
	}
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.svc.EditToCustom(c.Request.Context(), groupID, movieID, EditInput{
		Title:       req.Title,
		PosterPath:  req.PosterPath,
		Overview:    req.Overview,
		ReleaseYear: req.ReleaseYear,
		Runtime:     req.Runtime,
		StatusPatch: req.StatusPatch,
	})
	if err != nil {
		h.fail(c, "convert group movie", err)
		return
	}
	response.OK(c, m)
}

// Delete handles DELETE /groups/:id/movies/:movieId.
func (h *Handler) Delete(c *gin.Context) {
	groupID, movieID, ok := movieIDs(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), groupID, movieID); err != nil {
		h.fail(c, "delete group movie", err)
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
