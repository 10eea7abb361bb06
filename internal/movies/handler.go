package movies

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/pkg/response"
)

// Handler serves the movie catalog.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a catalog handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// SearchQuery is the query string for GET /movies.
type SearchQuery struct {
	Query string `form:"query" binding:"max=200"`
	Page  int    `form:"page" binding:"omitempty,min=1"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// CreateMovieRequest is the body for POST /movies.
type CreateMovieRequest struct {
	ExternalID  string   `json:"externalId" binding:"required,max=64"`
	ImdbID      *string  `json:"imdbId" binding:"omitempty,max=32"`
	Title       string   `json:"title" binding:"required,max=512"`
	PosterPath  *string  `json:"posterPath" binding:"omitempty,max=512"`
	Overview    *string  `json:"overview"`
	ReleaseYear *int     `json:"releaseYear" binding:"omitempty,min=1800,max=2100"`
	Rating      *float64 `json:"rating" binding:"omitempty,min=0,max=10"`
	Runtime     *int     `json:"runtime" binding:"omitempty,min=0"`
}

// UpdateMovieRequest is the body for PATCH /movies/:movieId. Omitted fields are kept.
type UpdateMovieRequest struct {
	Title       *string  `json:"title" binding:"omitempty,min=1,max=512"`
	PosterPath  *string  `json:"posterPath" binding:"omitempty,max=512"`
	Overview    *string  `json:"overview"`
	ReleaseYear *int     `json:"releaseYear" binding:"omitempty,min=1800,max=2100"`
	Rating      *float64 `json:"rating" binding:"omitempty,min=0,max=10"`
	Runtime     *int     `json:"runtime" binding:"omitempty,min=0"`
}

func (r UpdateMovieRequest) apply(m *models.Movie) {
	if r.Title != nil {
		m.Title = *r.Title
	}
	if r.PosterPath != nil {
		m.PosterPath = r.PosterPath
	}
	if r.Overview != nil {
		m.Overview = r.Overview
	}
	if r.ReleaseYear != nil {
		m.ReleaseYear = r.ReleaseYear
	}
	if r.Rating != nil {
		m.Rating = r.Rating
	}
	if r.Runtime != nil {
		m.Runtime = r.Runtime
	}
}

// RegisterRoutes mounts the catalog routes on an authenticated router group.
func (h *Handler) RegisterRoutes(api gin.IRoutes) {
	admin := middleware.RequireRole(string(models.UserRoleAdmin))
	api.GET("/movies", h.Search)
	api.GET("/movies/:movieId", h.Get)
	api.POST("/movies", admin, h.Create)
	api.PATCH("/movies/:movieId", admin, h.Update)
	api.DELETE("/movies/:movieId", admin, h.Delete)
}

func movieID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("movieId"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid movie id")
		return 0, false
	}
	return id, true
}

// Search handles GET /movies.
func (h *Handler) Search(c *gin.Context) {
	var q SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	page, limit, offset := models.PageBounds(q.Page, q.Limit)
	list, total, err := h.store.Search(c.Request.Context(), strings.TrimSpace(q.Query), limit, offset)
	if err != nil {
		h.logger.Error("search movies", zap.Error(err))
		response.Internal(c, "failed to search movies")
		return
	}
	response.OK(c, models.Page[models.Movie]{Items: list, Total: total, Page: page, Limit: limit})
}

// Get handles GET /movies/:movieId.
func (h *Handler) Get(c *gin.Context) {
	id, ok := movieID(c)
	if !ok {
		return
	}
	m, err := h.store.FindByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get movie", zap.Int64("movie_id", id), zap.Error(err))
		response.Internal(c, "failed to load movie")
		return
	}
	if m == nil {
		response.Error(c, MovieNotFound(id))
		return
	}
	response.OK(c, m)
}

// Create handles POST /movies (platform admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateMovieRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m := &models.Movie{
		ExternalID:  strings.TrimSpace(req.ExternalID),
		ImdbID:      req.ImdbID,
		Title:       req.Title,
		PosterPath:  req.PosterPath,
		Overview:    req.Overview,
		ReleaseYear: req.ReleaseYear,
		Rating:      req.Rating,
		Runtime:     req.Runtime,
	}
	if err := h.store.Create(c.Request.Context(), m); err != nil {
		if _, ok := apperr.As(err); !ok {
			h.logger.Error("create movie", zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	h.logger.Info("movie created", zap.Int64("movie_id", m.ID), zap.String("external_id", m.ExternalID))
	response.Created(c, m)
}

// Update handles PATCH /movies/:movieId (platform admin).
func (h *Handler) Update(c *gin.Context) {
	id, ok := movieID(c)
	if !ok {
		return
	}
	var req UpdateMovieRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	m, err := h.store.FindByID(ctx, id)
	if err == nil && m != nil {
		req.apply(m)
		m, err = h.store.Update(ctx, m)
	}
	if err != nil {
		h.logger.Error("update movie", zap.Int64("movie_id", id), zap.Error(err))
		response.Internal(c, "failed to update movie")
		return
	}
	if m == nil {
		response.Error(c, MovieNotFound(id))
		return
	}
	h.logger.Info("movie updated", zap.Int64("movie_id", id))
	response.OK(c, m)
}

// Delete handles DELETE /movies/:movieId (platform admin). Groups tracking the
// movie lose it with it.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := movieID(c)
	if !ok {
		return
	}
	found, err := h.store.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete movie", zap.Int64("movie_id", id), zap.Error(err))
		response.Internal(c, "failed to delete movie")
		return
	}
	if !found {
		response.Error(c, MovieNotFound(id))
		return
	}
	h.logger.Info("movie deleted", zap.Int64("movie_id", id))
	response.NoContent(c)
}
