package authority

import (
	"context"
	"fmt"
	"sync"

	"absencetracker/internal/attendance"
)

// MemoryStore is a Store kept in process memory, for local runs without
// Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]User // by username
	names   map[string]string
	absents map[string]attendance.Record
	order   []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   map[string]User{},
		names:   map[string]string{},
		absents: map[string]attendance.Record{},
	}
}

func (m *MemoryStore) InsertUser(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return fmt.Errorf("%w: %s", ErrUsernameTaken, u.Username)
	}
	m.users[u.Username] = u
	m.names[u.ID] = u.Name
	return nil
}

func (m *MemoryStore) UserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (m *MemoryStore) ListAbsents(ctx context.Context) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []attendance.Record{}
	for _, id := range m.order {
		out = append(out, m.populated(m.absents[id]))
	}
	return out, nil
}

func (m *MemoryStore) InsertAbsent(ctx context.Context, rec attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.absents[rec.RemoteID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAbsent, rec.RemoteID)
	}
	for _, cur := range m.absents {
		if cur.ID == rec.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateAbsent, rec.ID)
		}
	}
	m.absents[rec.RemoteID] = rec
	m.order = append(m.order, rec.RemoteID)
	return nil
}

func (m *MemoryStore) UpdateAbsent(ctx context.Context, owner string, rec attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.absents[rec.RemoteID]
	if !ok || cur.User.ID != owner {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.RemoteID)
	}
	cur.Day, cur.Date, cur.Type, cur.From, cur.To = rec.Day, rec.Date, rec.Type, rec.From, rec.To
	m.absents[rec.RemoteID] = cur
	return nil
}

func (m *MemoryStore) DeleteAbsent(ctx context.Context, owner, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.absents[remoteID]
	if !ok || cur.User.ID != owner {
		return fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	}
	delete(m.absents, remoteID)
	for i, id := range m.order {
		if id == remoteID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) GetAbsent(ctx context.Context, remoteID string) (attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.absents[remoteID]
	if !ok {
		return attendance.Record{}, fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	}
	return m.populated(rec), nil
}

func (m *MemoryStore) populated(rec attendance.Record) attendance.Record {
	rec.User.Name = m.names[rec.User.ID]
	if rec.Name == "" {
		rec.Name = rec.User.Name
	}
	return rec
}
