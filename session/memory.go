package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process [Store] used by tests and local development.
// It mirrors PostgresStore semantics, including single-winner Rotate.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) PersistInitial(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) FindByID(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) FindActive(_ context.Context, refreshTokenHash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, s := range m.sessions {
		if s.RefreshTokenHash == refreshTokenHash && s.Active(now) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Rotate(_ context.Context, oldID string, next *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.sessions[oldID]
	if !ok {
		return ErrNotFound
	}
	if old.RevokedAt != nil {
		return ErrRotated
	}

	now := time.Now()
	old.RevokedAt = &now

	cp := *next
	cp.FamilyID = old.FamilyID
	cp.RotatedFrom = oldID
	m.sessions[cp.ID] = &cp

	next.FamilyID = cp.FamilyID
	next.RotatedFrom = oldID
	return nil
}

func (m *MemoryStore) RevokeSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.RevokedAt == nil {
		now := time.Now()
		s.RevokedAt = &now
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) RevokeFamily(_ context.Context, familyID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var revoked []*Session
	for _, s := range m.sessions {
		if s.FamilyID == familyID && s.RevokedAt == nil {
			s.RevokedAt = &now
			cp := *s
			revoked = append(revoked, &cp)
		}
	}
	return revoked, nil
}

func (m *MemoryStore) RevokeAll(_ context.Context, userID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var revoked []*Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
			cp := *s
			revoked = append(revoked, &cp)
		}
	}
	return revoked, nil
}

func (m *MemoryStore) ListActive(_ context.Context, userID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []*Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.LastUsedAt = &at
	}
	return nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context, retainFor time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-retainFor)
	var purged int64
	for id, s := range m.sessions {
		if s.ExpiresAt.After(now) {
			continue
		}
		terminal := s.ExpiresAt
		if s.RevokedAt != nil {
			terminal = *s.RevokedAt
		}
		if terminal.Before(cutoff) {
			delete(m.sessions, id)
			purged++
		}
	}
	return purged, nil
}

// Len reports the number of rows held, including revoked ones.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
