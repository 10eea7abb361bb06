package groupmovies

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/movieclub/backend/internal/apperr"
	"github.com/movieclub/backend/internal/custommovies"
	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/internal/movies"
)

var (
	ErrGroupMovieNotFound  = apperr.NotFound("group_movie_not_found", "Movie not found in group")
	ErrMovieAlreadyInGroup = apperr.Conflict("movie_already_in_group", "Movie is already in this group")
	ErrMovieReference      = apperr.BadRequest("invalid_movie_reference", "exactly one of movieId, imdbId or externalId is required")
)

func groupMovieNotFound(groupID, movieID int64) error {
	return ErrGroupMovieNotFound.WithMessage("Movie %d not found in group %d", movieID, groupID)
}

// searchLimit caps each side of a group search.
const searchLimit = 20

// TxRunner runs fn in a single transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CustomMovies is the part of the custom movies service a group search and
// a conversion need.
type CustomMovies interface {
	Create(ctx context.Context, groupID int64, createdBy *int64, in custommovies.CreateInput) (*models.CustomMovie, error)
	List(ctx context.Context, groupID int64, query string, page, limit int) (*models.Page[models.CustomMovie], error)
}

// AddInput names the catalog movie to add. Exactly one field is set.
type AddInput struct {
	MovieID    *int64
	ImdbID     *string
	ExternalID *string
}

// EditInput overrides catalog fields when a group movie becomes a custom movie.
type EditInput struct {
	Title       *string
	PosterPath  *string
	Overview    *string
	ReleaseYear *int
	Runtime     *int
	models.StatusPatch
}

// SearchHit is a catalog movie with whether the group already has it.
type SearchHit struct {
	models.Movie
	InGroup bool `json:"inGroup"`
}

// SearchResult is what a group member sees when looking for a movie to add.
type SearchResult struct {
	Movies       []SearchHit          `json:"movies"`
	CustomMovies []models.CustomMovie `json:"customMovies"`
}

// Service implements group movie operations. Membership is checked by the
// route guards before any method runs.
type Service struct {
	store   Store
	catalog movies.Store
	custom  CustomMovies
	tx      TxRunner
	logger  *zap.Logger
}

// NewService creates a group movies service.
func NewService(store Store, catalog movies.Store, custom CustomMovies, tx TxRunner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, catalog: catalog, custom: custom, tx: tx, logger: logger}
}

// List pages through a group's movies, newest first.
func (s *Service) List(ctx context.Context, groupID int64, page, limit int) (*models.Page[models.GroupMovieWithMovie], error) {
	page, limit, offset := models.PageBounds(page, limit)
	items, total, err := s.store.ListByGroup(ctx, groupID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &models.Page[models.GroupMovieWithMovie]{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *Service) resolve(ctx context.Context, in AddInput) (*models.Movie, error) {
	var (
		mv  *models.Movie
		err error
		ref string
	)
	switch {
	case in.MovieID != nil && in.ImdbID == nil && in.ExternalID == nil:
		mv, err = s.catalog.FindByID(ctx, *in.MovieID)
		ref = fmt.Sprintf("id %d", *in.MovieID)
	case in.ImdbID != nil && in.MovieID == nil && in.ExternalID == nil:
		mv, err = s.catalog.FindByImdbID(ctx, strings.TrimSpace(*in.ImdbID))
		ref = "imdb id " + *in.ImdbID
	case in.ExternalID != nil && in.MovieID == nil && in.ImdbID == nil:
		mv, err = s.catalog.FindByExternalID(ctx, strings.TrimSpace(*in.ExternalID))
		ref = "external id " + *in.ExternalID
	default:
		return nil, ErrMovieReference
	}
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, movies.ErrMovieNotFound.WithMessage("Movie with %s not found", ref)
	}
	return mv, nil
}

// Add links a catalog movie to groupID with status tracking.
func (s *Service) Add(ctx context.Context, groupID, userID int64, in AddInput) (*models.GroupMovieWithMovie, error) {
	mv, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	gm := models.GroupMovie{
		GroupID:   groupID,
		MovieID:   mv.ID,
		AddedByID: &userID,
		Status:    models.MovieStatusTracking,
	}
	if err := s.store.Add(ctx, &gm); err != nil {
		return nil, err
	}
	s.logger.Info("movie added to group",
		zap.Int64("group_id", groupID), zap.Int64("movie_id", mv.ID), zap.Int64("user_id", userID))
	return &models.GroupMovieWithMovie{GroupMovie: gm, Movie: *mv}, nil
}

// Get returns catalog movie movieID as linked to groupID.
func (s *Service) Get(ctx context.Context, groupID, movieID int64) (*models.GroupMovieWithMovie, error) {
	gm, err := s.store.Find(ctx, groupID, movieID)
	if err != nil {
		return nil, err
	}
	if gm == nil {
		return nil, groupMovieNotFound(groupID, movieID)
	}
	return gm, nil
}

// UpdateStatus merges patch into the group movie's status and dates.
func (s *Service) UpdateStatus(ctx context.Context, groupID, movieID int64, patch models.StatusPatch) (*models.GroupMovieWithMovie, error) {
	gm, err := s.Get(ctx, groupID, movieID)
	if err != nil {
		return nil, err
	}
	status, planned, watched, err := patch.Apply(gm.Status, gm.PlannedDate, gm.WatchedDate)
	if err != nil {
		return nil, custommovies.InvalidStatus(err)
	}
	gm.Status, gm.PlannedDate, gm.WatchedDate = status, planned, watched
	if err := s.store.UpdateStatus(ctx, &gm.GroupMovie); err != nil {
		return nil, err
	}
	s.logger.Info("group movie status updated",
		zap.Int64("group_id", groupID), zap.Int64("movie_id", movieID), zap.String("status", string(status)))
	return gm, nil
}

// Delete unlinks movieID from groupID.
func (s *Service) Delete(ctx context.Context, groupID, movieID int64) error {
	if _, err := s.Get(ctx, groupID, movieID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, groupID, movieID); err != nil {
		return err
	}
	s.logger.Info("movie removed from group", zap.Int64("group_id", groupID), zap.Int64("movie_id", movieID))
	return nil
}

// Search looks up query in the catalog and in the group's custom movies at once.
func (s *Service) Search(ctx context.Context, groupID int64, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	var (
		found  []models.Movie
		custom *models.Page[models.CustomMovie]
		linked []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		found, _, err = s.catalog.Search(gctx, query, searchLimit, 0)
		return err
	})
	g.Go(func() error {
		var err error
		custom, err = s.custom.List(gctx, groupID, query, 1, searchLimit)
		return err
	})
	g.Go(func() error {
		var err error
		linked, err = s.store.MovieIDs(gctx, groupID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search group %d: %w", groupID, err)
	}

	in := make(map[int64]bool, len(linked))
	for _, id := range linked {
		in[id] = true
	}
	hits := make([]SearchHit, len(found))
	for i, mv := range found {
		hits[i] = SearchHit{Movie: mv, InGroup: in[mv.ID]}
	}
	return &SearchResult{Movies: hits, CustomMovies: custom.Items}, nil
}

// EditToCustom replaces a group movie with a custom movie carrying the
// catalog details, overridden by in. Status and dates carry over unless
// patched. Both writes happen in one transaction.
func (s *Service) EditToCustom(ctx context.Context, groupID, movieID int64, in EditInput) (*models.CustomMovie, error) {
	var created *models.CustomMovie
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		gm, err := s.Get(ctx, groupID, movieID)
		if err != nil {
			return err
		}
		status, planned, watched, err := in.StatusPatch.Apply(gm.Status, gm.PlannedDate, gm.WatchedDate)
		if err != nil {
			return custommovies.InvalidStatus(err)
		}
		input := custommovies.CreateInput{
			Title:       gm.Movie.Title,
			PosterPath:  gm.Movie.PosterPath,
			Overview:    gm.Movie.Overview,
			ReleaseYear: gm.Movie.ReleaseYear,
			Runtime:     gm.Movie.Runtime,
			Status:      &status,
			PlannedDate: planned,
			WatchedDate: watched,
		}
		if in.Title != nil {
			input.Title = *in.Title
		}
		if in.PosterPath != nil {
			input.PosterPath = in.PosterPath
		}
		if in.Overview != nil {
			input.Overview = in.Overview
		}
		if in.ReleaseYear != nil {
			input.ReleaseYear = in.ReleaseYear
		}
		if in.Runtime != nil {
			input.Runtime = in.Runtime
		}
		created, err = s.custom.Create(ctx, groupID, gm.AddedByID, input)
		if err != nil {
			return err
		}
		return s.store.Delete(ctx, groupID, movieID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("group movie converted to custom movie",
		zap.Int64("group_id", groupID), zap.Int64("movie_id", movieID), zap.Int64("custom_movie_id", created.ID))
	return created, nil
}
