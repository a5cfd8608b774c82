package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	dom "tasktracker/internal/domain"
)

// MemoryStore keeps users and tasks in process. It backs STORAGE_DRIVER=memory
// and the service and handler tests. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID int64
	tasks  map[int64]dom.Task
	users  map[string]dom.User
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:   func() time.Time { return time.Now().UTC() },
		tasks: make(map[int64]dom.Task),
		users: make(map[string]dom.User),
	}
}

// Tasks returns a TaskRepo view of the store.
func (m *MemoryStore) Tasks() *MemoryTaskRepo { return &MemoryTaskRepo{m} }

// Users returns a UserRepo view of the store.
func (m *MemoryStore) Users() *MemoryUserRepo { return &MemoryUserRepo{m} }

type MemoryTaskRepo struct{ m *MemoryStore }

func (r *MemoryTaskRepo) Create(_ context.Context, t dom.Task) (dom.Task, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[t.OwnerID]; !ok {
		return dom.Task{}, ErrUnknownOwner
	}
	m.nextID++
	now := m.now()
	t.ID = m.nextID
	t.Version = 1
	t.CreatedAt, t.UpdatedAt = now, now
	m.tasks[t.ID] = t
	return t, nil
}

func (r *MemoryTaskRepo) GetByID(_ context.Context, id int64) (dom.Task, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return dom.Task{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryTaskRepo) List(_ context.Context, f dom.TaskFilter) ([]dom.Task, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	list := []dom.Task{}
	for _, t := range m.tasks {
		if f.OwnerID != "" && t.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (r *MemoryTaskRepo) Update(_ context.Context, t dom.Task) (dom.Task, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[t.ID]
	if !ok || cur.Version != t.Version {
		return dom.Task{}, ErrStale
	}
	cur.Title = t.Title
	cur.Description = t.Description
	cur.Status = t.Status
	cur.Version++
	cur.UpdatedAt = m.now()
	m.tasks[t.ID] = cur
	return cur, nil
}

func (r *MemoryTaskRepo) Delete(_ context.Context, id, version int64) error {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tasks[id]
	if !ok || cur.Version != version {
		return ErrStale
	}
	delete(m.tasks, id)
	return nil
}

func (r *MemoryTaskRepo) DeleteByOwners(_ context.Context, ownerIDs []string) (int64, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tasks {
		for _, owner := range ownerIDs {
			if t.OwnerID == owner {
				delete(m.tasks, id)
				n++
				break
			}
		}
	}
	return n, nil
}

type MemoryUserRepo struct{ m *MemoryStore }

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (dom.User, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return dom.User{}, ErrNotFound
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id string) (dom.User, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return dom.User{}, ErrNotFound
	}
	return u, nil
}

func (r *MemoryUserRepo) Create(_ context.Context, u dom.User) (dom.User, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return dom.User{}, ErrDuplicate
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return dom.User{}, ErrDuplicate
		}
	}
	now := m.now()
	u.CreatedAt, u.UpdatedAt = now, now
	m.users[u.ID] = u
	return u, nil
}

func (r *MemoryUserRepo) SetRole(_ context.Context, id string, role dom.Role) (dom.User, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return dom.User{}, ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = m.now()
	m.users[id] = u
	return u, nil
}

func (r *MemoryUserRepo) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	m := r.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := m.users[id]; ok {
			delete(m.users, id)
			n++
		}
	}
	return n, nil
}

var (
	_ TaskRepo = (*PGTaskRepo)(nil)
	_ TaskRepo = (*MemoryTaskRepo)(nil)
	_ UserRepo = (*PGUserRepo)(nil)
	_ UserRepo = (*MemoryUserRepo)(nil)
)
