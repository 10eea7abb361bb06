package custommovies

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/models"
)

var (
	ErrCustomMovieNotFound = apperr.NotFound("custom_movie_not_found", "Custom movie not found")
	ErrNotInGroup          = apperr.Forbidden("custom_movie_not_in_group", "Custom movie does not belong to this group")
	ErrInvalidMovieStatus  = apperr.BadRequest("invalid_movie_status", "Invalid movie status")
	ErrEmptyTitle          = apperr.BadRequest("invalid_title", "title must not be empty")
)

// InvalidStatus wraps a status/date rule violation as a bad request.
func InvalidStatus(err error) error {
	return ErrInvalidMovieStatus.WithMessage("%s", err.Error())
}

// GroupLister returns the groups a user belongs to.
type GroupLister interface {
	FindUserGroups(ctx context.Context, userID int64) ([]models.Group, error)
}

// CreateInput holds the fields of a new custom movie.
type CreateInput struct {
	Title       string
	PosterPath  *string
	Overview    *string
	ReleaseYear *int
	Runtime     *int
	Status      *models.MovieStatus
	PlannedDate *time.Time
	WatchedDate *time.Time
}

// UpdateInput is a partial update. Nil fields are kept.
type UpdateInput struct {
	Title       *string
	PosterPath  *string
	Overview    *string
	ReleaseYear *int
	Runtime     *int
	models.StatusPatch
}

// Service implements custom movie operations. Membership is checked by the
// route guards before any method runs.
type Service struct {
	store  Store
	groups GroupLister
	logger *zap.Logger
}

// NewService creates a custom movies service.
func NewService(store Store, groups GroupLister, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, groups: groups, logger: logger}
}

// Create adds a custom movie to groupID. createdBy may be nil.
func (s *Service) Create(ctx context.Context, groupID int64, createdBy *int64, in CreateInput) (*models.CustomMovie, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	status := models.MovieStatusTracking
	if in.Status != nil {
		status = *in.Status
	}
	if err := models.ValidateStatusDates(status, in.PlannedDate, in.WatchedDate); err != nil {
		return nil, InvalidStatus(err)
	}
	m := &models.CustomMovie{
		GroupID:     groupID,
		Title:       title,
		PosterPath:  in.PosterPath,
		Overview:    in.Overview,
		ReleaseYear: in.ReleaseYear,
		Runtime:     in.Runtime,
		Status:      status,
		PlannedDate: in.PlannedDate,
		WatchedDate: in.WatchedDate,
		CreatedByID: createdBy,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	fields := []zap.Field{zap.Int64("group_id", groupID), zap.Int64("custom_movie_id", m.ID)}
	if createdBy != nil {
		fields = append(fields, zap.Int64("user_id", *createdBy))
	}
	s.logger.Info("custom movie created", fields...)
	return m, nil
}

// Get returns custom movie id, which must belong to groupID.
func (s *Service) Get(ctx context.Context, groupID, id int64) (*models.CustomMovie, error) {
	m, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrCustomMovieNotFound.WithMessage("Custom movie with id %d not found", id)
	}
	if m.GroupID != groupID {
		return nil, ErrNotInGroup.WithMessage("Custom movie %d does not belong to group %d", id, groupID)
	}
	return m, nil
}

// Update patches custom movie id. The merged status and dates are validated
// together, so a patch may move a movie from planned to watched in one call.
func (s *Service) Update(ctx context.Context, groupID, id int64, in UpdateInput) (*models.CustomMovie, error) {
	m, err := s.Get(ctx, groupID, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, ErrEmptyTitle
		}
		m.Title = title
	}
	if in.PosterPath != nil {
		m.PosterPath = in.PosterPath
	}
	if in.Overview != nil {
		m.Overview = in.Overview
	}
	if in.ReleaseYear != nil {
		m.ReleaseYear = in.ReleaseYear
	}
	if in.Runtime != nil {
		m.Runtime = in.Runtime
	}
	status, planned, watched, err := in.StatusPatch.Apply(m.Status, m.PlannedDate, m.WatchedDate)
	if err != nil {
		return nil, InvalidStatus(err)
	}
	m.Status, m.PlannedDate, m.WatchedDate = status, planned, watched
	if err := s.store.Update(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("custom movie updated", zap.Int64("group_id", groupID), zap.Int64("custom_movie_id", id))
	return m, nil
}

// Delete removes custom movie id from groupID.
func (s *Service) Delete(ctx context.Context, groupID, id int64) error {
	if _, err := s.Get(ctx, groupID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("custom movie deleted", zap.Int64("group_id", groupID), zap.Int64("custom_movie_id", id))
	return nil
}

// List pages through the custom movies of one group.
func (s *Service) List(ctx context.Context, groupID int64, query string, page, limit int) (*models.Page[models.CustomMovie], error) {
	return s.list(ctx, []int64{groupID}, query, page, limit)
}

// ListForUser pages through the custom movies of every group userID belongs to.
func (s *Service) ListForUser(ctx context.Context, userID int64, query string, page, limit int) (*models.Page[models.CustomMovie], error) {
	groups, err := s.groups.FindUserGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups of user %d: %w", userID, err)
	}
	ids := make([]int64, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return s.list(ctx, ids, query, page, limit)
}

func (s *Service) list(ctx context.Context, groupIDs []int64, query string, page, limit int) (*models.Page[models.CustomMovie], error) {
	page, limit, offset := models.PageBounds(page, limit)
	items, total, err := s.store.ListByGroups(ctx, groupIDs, strings.TrimSpace(query), limit, offset)
	if err != nil {
		return nil, err
	}
	return &models.Page[models.CustomMovie]{Items: items, Total: total, Page: page, Limit: limit}, nil
}
