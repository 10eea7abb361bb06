package custommovies

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
	movies map[int64]models.CustomMovie
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{movies: make(map[int64]models.CustomMovie), now: time.Now}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Create(_ context.Context, m *models.CustomMovie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now().UTC()
	m.ID, m.CreatedAt, m.UpdatedAt = s.nextID, now, now
	s.movies[m.ID] = *m
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id int64) (*models.CustomMovie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.movies[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryStore) Update(_ context.Context, m *models.CustomMovie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.movies[m.ID]; !ok {
		return nil
	}
	m.UpdatedAt = s.now().UTC()
	s.movies[m.ID] = *m
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.movies, id)
	return nil
}

// DeleteByGroup mirrors the ON DELETE CASCADE from groups.
func (s *MemoryStore) DeleteByGroup(groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.movies {
		if m.GroupID == groupID {
			delete(s.movies, id)
		}
	}
}

func (s *MemoryStore) ListByGroups(_ context.Context, groupIDs []int64, query string, limit, offset int) ([]models.CustomMovie, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in := make(map[int64]bool, len(groupIDs))
	for _, id := range groupIDs {
		in[id] = true
	}
	q := strings.ToLower(query)
	var hits []models.CustomMovie
	for _, m := range s.movies {
		if !in[m.GroupID] {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(m.Title), q) &&
			(m.Overview == nil || !strings.Contains(strings.ToLower(*m.Overview), q)) {
			continue
		}
		hits = append(hits, m)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	total := len(hits)
	if offset >= total {
		return []models.CustomMovie{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return hits[offset:end], total, nil
}
