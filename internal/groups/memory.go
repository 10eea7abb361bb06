package groups

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/movieclub/backend/internal/models"
)

// MemoryStore is an in-process Store used by tests and local runs without Postgres.
// RunInTx and WithGroupLock restore the state they started from when fn fails.
// RunInTx callers are serialized with each other; WithGroupLock per group.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	groups  map[int64]models.Group
	members map[int64]map[int64]models.GroupMember
	users   map[int64]models.UserSummary
	now     func() time.Time

	txMu   sync.Mutex
	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		groups:  make(map[int64]models.Group),
		members: make(map[int64]map[int64]models.GroupMember),
		users:   make(map[int64]models.UserSummary),
		now:     time.Now,
		locks:   make(map[int64]*sync.Mutex),
	}
}

var _ Store = (*MemoryStore)(nil)

// PutUser registers a user summary for member listings.
func (s *MemoryStore) PutUser(u models.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateGroup(_ context.Context, g *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	g.ID = s.id()
	g.CreatedAt, g.UpdatedAt = now, now
	s.groups[g.ID] = *g
	s.members[g.ID] = make(map[int64]models.GroupMember)
	return nil
}

func (s *MemoryStore) FindGroupByID(_ context.Context, id int64) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *MemoryStore) FindAllGroups(_ context.Context) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		list = append(list, g)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) FindGroupsByUserID(_ context.Context, userID int64) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type joined struct {
		group    models.Group
		memberID int64
	}
	var rows []joined
	for gid, ms := range s.members {
		if m, ok := ms[userID]; ok {
			rows = append(rows, joined{group: s.groups[gid], memberID: m.ID})
		}
	}
	// member ids grow monotonically, so they give join order
	sort.Slice(rows, func(i, j int) bool { return rows[i].memberID < rows[j].memberID })
	list := make([]models.Group, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.group)
	}
	return list, nil
}

func (s *MemoryStore) FindGroupsAdministeredBy(_ context.Context, userID int64) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := []models.Group{}
	for gid, ms := range s.members {
		if m, ok := ms[userID]; ok && m.Role == models.GroupRoleAdmin {
			list = append(list, s.groups[gid])
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *MemoryStore) UpdateGroup(_ context.Context, id int64, patch models.GroupPatch) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	g = patch.Apply(g)
	g.UpdatedAt = s.now()
	s.groups[id] = g
	return &g, nil
}

func (s *MemoryStore) DeleteGroup(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	delete(s.members, id)
	return nil
}

func (s *MemoryStore) AddMember(_ context.Context, m *models.GroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.members[m.GroupID]
	if !ok {
		return ErrGroupNotFound
	}
	if _, exists := ms[m.UserID]; exists {
		return ErrUserAlreadyMember
	}
	now := s.now()
	m.ID = s.id()
	m.CreatedAt, m.UpdatedAt = now, now
	ms[m.UserID] = *m
	return nil
}

func (s *MemoryStore) FindMember(_ context.Context, groupID, userID int64) (*models.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[groupID][userID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryStore) FindMemberWithUser(_ context.Context, groupID, userID int64) (*models.GroupMemberWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[groupID][userID]
	if !ok {
		return nil, nil
	}
	return &models.GroupMemberWithUser{GroupMember: m, User: s.userSummary(userID)}, nil
}

func (s *MemoryStore) userSummary(id int64) models.UserSummary {
	if u, ok := s.users[id]; ok {
		return u
	}
	return models.UserSummary{ID: id}
}

func (s *MemoryStore) sortedMembers(groupID int64) []models.GroupMember {
	ms := s.members[groupID]
	list := make([]models.GroupMember, 0, len(ms))
	for _, m := range ms {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (s *MemoryStore) FindMembersByGroup(_ context.Context, groupID int64) ([]models.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedMembers(groupID), nil
}

func (s *MemoryStore) FindMembersByGroupWithUsers(_ context.Context, groupID int64) ([]models.GroupMemberWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.sortedMembers(groupID)
	list := make([]models.GroupMemberWithUser, 0, len(members))
	for _, m := range members {
		list = append(list, models.GroupMemberWithUser{GroupMember: m, User: s.userSummary(m.UserID)})
	}
	return list, nil
}

func (s *MemoryStore) UpdateMemberRole(_ context.Context, groupID, userID int64, role models.GroupMemberRole) (*models.GroupMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[groupID][userID]
	if !ok {
		return nil, nil
	}
	m.Role = role
	m.UpdatedAt = s.now()
	s.members[groupID][userID] = m
	return &m, nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, groupID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[groupID], userID)
	return nil
}

func (s *MemoryStore) CountAdmins(_ context.Context, groupID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.members[groupID] {
		if m.Role == models.GroupRoleAdmin {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) FindAdminByGroup(_ context.Context, groupID int64) (*models.GroupMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.sortedMembers(groupID) {
		if m.Role == models.GroupRoleAdmin {
			return &m, nil
		}
	}
	return nil, nil
}

// TransferOwnership applies both role writes under one lock, or neither.
func (s *MemoryStore) TransferOwnership(_ context.Context, groupID, fromUserID, toUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.members[groupID]
	from, okFrom := ms[fromUserID]
	to, okTo := ms[toUserID]
	if !okFrom || !okTo || from.Role != models.GroupRoleAdmin || to.Role == models.GroupRoleAdmin {
		return ErrCannotTransferOwnership
	}
	now := s.now()
	from.Role, from.UpdatedAt = models.GroupRoleModerator, now
	to.Role, to.UpdatedAt = models.GroupRoleAdmin, now
	ms[fromUserID] = from
	ms[toUserID] = to
	return nil
}

func (s *MemoryStore) GetGroupWithMember(_ context.Context, groupID, userID int64) (*models.GroupWithMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	out := &models.GroupWithMember{Group: g}
	if m, ok := s.members[groupID][userID]; ok {
		out.Member = &m
	}
	return out, nil
}

type memoryTxKey struct{}

// RunInTx joins an enclosing RunInTx like the Postgres store does.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	ctx = context.WithValue(ctx, memoryTxKey{}, true)

	s.mu.RLock()
	groups := make(map[int64]models.Group, len(s.groups))
	for id, g := range s.groups {
		groups[id] = g
	}
	members := make(map[int64]map[int64]models.GroupMember, len(s.members))
	for id, ms := range s.members {
		members[id] = copyMembers(ms)
	}
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.groups, s.members = groups, members
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) WithGroupLock(ctx context.Context, groupID int64, fn func(ctx context.Context) error) error {
	s.lockMu.Lock()
	l, ok := s.locks[groupID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[groupID] = l
	}
	s.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	g, hadGroup := s.groups[groupID]
	ms, hadMembers := s.members[groupID]
	ms = copyMembers(ms)
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		if hadGroup {
			s.groups[groupID] = g
		} else {
			delete(s.groups, groupID)
		}
		if hadMembers {
			s.members[groupID] = ms
		} else {
			delete(s.members, groupID)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func copyMembers(ms map[int64]models.GroupMember) map[int64]models.GroupMember {
	if ms == nil {
		return nil
	}
	out := make(map[int64]models.GroupMember, len(ms))
	for id, m := range ms {
		out[id] = m
	}
	return out
}
