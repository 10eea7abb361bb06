package movies

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/movieclub/backend/internal/models"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	movies map[int64]models.Movie
}

// NewMemoryStore creates an empty in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{movies: make(map[int64]models.Movie)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) find(match func(models.Movie) bool) *models.Movie {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.movies {
		if match(m) {
			m := m
			return &m
		}
	}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (*models.Movie, error) {
	return s.find(func(m models.Movie) bool { return m.ID == id }), nil
}

func (s *MemoryStore) FindByExternalID(_ context.Context, externalID string) (*models.Movie, error) {
	return s.find(func(m models.Movie) bool { return m.ExternalID == externalID }), nil
}

func (s *MemoryStore) FindByImdbID(_ context.Context, imdbID string) (*models.Movie, error) {
	return s.find(func(m models.Movie) bool { return m.ImdbID != nil && *m.ImdbID == imdbID }), nil
}

func (s *MemoryStore) Search(_ context.Context, query string, limit, offset int) ([]models.Movie, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var hits []models.Movie
	for _, m := range s.movies {
		if q == "" || strings.Contains(strings.ToLower(m.Title), q) {
			hits = append(hits, m)
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Title != hits[j].Title {
			return hits[i].Title < hits[j].Title
		}
		return hits[i].ID < hits[j].ID
	})
	total := len(hits)
	if offset >= total {
		return []models.Movie{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return hits[offset:end], total, nil
}

func (s *MemoryStore) Create(_ context.Context, m *models.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.movies {
		if existing.ExternalID == m.ExternalID {
			return ErrMovieAlreadyExists
		}
	}
	s.nextID++
	now := time.Now().UTC()
	m.ID, m.CreatedAt, m.UpdatedAt = s.nextID, now, now
	s.movies[m.ID] = *m
	return nil
}

func (s *MemoryStore) Update(_ context.Context, m *models.Movie) (*models.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.movies[m.ID]
	if !ok {
		return nil, nil
	}
	cur.Title, cur.PosterPath, cur.Overview = m.Title, m.PosterPath, m.Overview
	cur.ReleaseYear, cur.Rating, cur.Runtime = m.ReleaseYear, m.Rating, m.Runtime
	cur.UpdatedAt = time.Now().UTC()
	s.movies[m.ID] = cur
	return &cur, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[id]; !ok {
		return false, nil
	}
	delete(s.movies, id)
	return true, nil
}
