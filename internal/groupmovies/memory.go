package groupmovies

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/movieclub/backend/internal/models"
	"github.com/movieclub/backend/internal/movies"
)

type groupMovieKey struct{ groupID, movieID int64 }

// MemoryStore is an in-process Store for tests and local runs. It joins
// against catalog for the movie details.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	rows    map[groupMovieKey]models.GroupMovie
	catalog movies.Store
}

// NewMemoryStore creates an empty store backed by catalog.
func NewMemoryStore(catalog movies.Store) *MemoryStore {
	return &MemoryStore{rows: make(map[groupMovieKey]models.GroupMovie), catalog: catalog}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Add(_ context.Context, gm *models.GroupMovie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := groupMovieKey{gm.GroupID, gm.MovieID}
	if _, ok := s.rows[key]; ok {
		return ErrMovieAlreadyInGroup
	}
	s.nextID++
	now := time.Now().UTC()
	gm.ID, gm.CreatedAt, gm.UpdatedAt = s.nextID, now, now
	s.rows[key] = *gm
	return nil
}

func (s *MemoryStore) join(ctx context.Context, gm models.GroupMovie) (*models.GroupMovieWithMovie, error) {
	mv, err := s.catalog.FindByID(ctx, gm.MovieID)
	if err != nil {
		return nil, err
	}
	if mv == nil {
		return nil, fmt.Errorf("group movie %d references missing movie %d", gm.ID, gm.MovieID)
	}
	return &models.GroupMovieWithMovie{GroupMovie: gm, Movie: *mv}, nil
}

func (s *MemoryStore) Find(ctx context.Context, groupID, movieID int64) (*models.GroupMovieWithMovie, error) {
	s.mu.RLock()
	gm, ok := s.rows[groupMovieKey{groupID, movieID}]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.join(ctx, gm)
}

func (s *MemoryStore) ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]models.GroupMovieWithMovie, int, error) {
	s.mu.RLock()
	var rows []models.GroupMovie
	for k, gm := range s.rows {
		if k.groupID == groupID {
			rows = append(rows, gm)
		}
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })

	total := len(rows)
	list := []models.GroupMovieWithMovie{}
	for i := offset; i < total && i < offset+limit; i++ {
		joined, err := s.join(ctx, rows[i])
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *joined)
	}
	return list, total, nil
}

func (s *MemoryStore) MovieIDs(_ context.Context, groupID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for k := range s.rows {
		if k.groupID == groupID {
			ids = append(ids, k.movieID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, gm *models.GroupMovie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := groupMovieKey{gm.GroupID, gm.MovieID}
	cur, ok := s.rows[key]
	if !ok {
		return nil
	}
	cur.Status, cur.PlannedDate, cur.WatchedDate = gm.Status, gm.PlannedDate, gm.WatchedDate
	cur.UpdatedAt = time.Now().UTC()
	gm.UpdatedAt = cur.UpdatedAt
	s.rows[key] = cur
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, groupID, movieID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, groupMovieKey{groupID, movieID})
	return nil
}
