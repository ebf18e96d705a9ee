package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/carecycle/services/lifecycle-service/internal/model"
)

// MemoryStore is a Store kept in process memory with the same compare-and-swap
// semantics as the PostgreSQL repository.
type MemoryStore struct {
	mu    sync.RWMutex
	appts map[string]model.Appointment
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		appts: map[string]model.Appointment{},
		now:   time.Now,
	}
}

// Put inserts or replaces a as-is, assigning an id and version 1 when unset.
func (s *MemoryStore) Put(a model.Appointment) model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Version == 0 {
		a.Version = 1
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	s.appts[a.ID] = a
	return a
}

func (s *MemoryStore) FindByStatusBefore(_ context.Context, status model.Status, before time.Time) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool {
		return a.Status == status && a.ScheduledAt.Before(before)
	}), nil
}

func (s *MemoryStore) FindByStatusBetween(_ context.Context, status model.Status, start, end time.Time) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool {
		return a.Status == status && inRange(a.ScheduledAt, start, end)
	}), nil
}

func (s *MemoryStore) FindByStatus(_ context.Context, status model.Status) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool {
		return a.Status == status
	}), nil
}

func (s *MemoryStore) FindDueForReminder(_ context.Context, start, end time.Time) ([]model.Appointment, error) {
	return s.filter(func(a model.Appointment) bool {
		return a.Status.AcceptsReminders() && inRange(a.ScheduledAt, start, end)
	}), nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) Save(_ context.Context, a model.Appointment) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.appts[a.ID]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	if cur.Version != a.Version {
		return model.Appointment{}, ErrConflict
	}
	a.Version = cur.Version + 1
	a.UpdatedAt = s.now().UTC()
	s.appts[a.ID] = a
	return a, nil
}

func (s *MemoryStore) filter(keep func(model.Appointment) bool) []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
