package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transitdesk/be-concessions/internal/domain"
	"github.com/transitdesk/be-concessions/internal/errors"
)

// MemoryStore is an in-memory ApplicationStore. It holds deep copies of
// every record, so callers can mutate what they get back without affecting
// stored state until ApplyTransition commits it.
type MemoryStore struct {
	mu   sync.RWMutex
	apps map[string]*domain.Application
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{apps: make(map[string]*domain.Application)}
}

// Create stores a new application.
func (s *MemoryStore) Create(ctx context.Context, app *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists {
		return errors.Conflict(fmt.Sprintf("application %s already exists", app.ID))
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

// GetByID retrieves a copy of an application.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, exists := s.apps[id]
	if !exists {
		return nil, errors.NotFound("application", id)
	}
	return app.Clone(), nil
}

// List returns applications matching the filter, newest first.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*domain.Application, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Application, 0)
	for _, app := range s.apps {
		if filter.Status != nil && app.Status != *filter.Status {
			continue
		}
		if filter.StudentID != nil && app.StudentID != *filter.StudentID {
			continue
		}
		if filter.CollegeID != nil && app.CollegeID != *filter.CollegeID {
			continue
		}
		if filter.DepotID != nil && app.DepotID != *filter.DepotID {
			continue
		}
		matched = append(matched, app)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ApplicationDate.Equal(matched[j].ApplicationDate) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].ApplicationDate.After(matched[j].ApplicationDate)
	})

	total := int64(len(matched))

	start := filter.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	out := make([]*domain.Application, 0, end-start)
	for _, app := range matched[start:end] {
		out = append(out, app.Clone())
	}
	return out, total, nil
}

// ApplyTransition commits a transitioned application if the stored status
// still matches expected, mirroring the optimistic UPDATE of the Postgres
// store.
func (s *MemoryStore) ApplyTransition(ctx context.Context, app *domain.Application, expected domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.apps[app.ID]
	if !exists {
		return errors.NotFound("application", app.ID)
	}
	if stored.Status != expected {
		return errors.Conflict(fmt.Sprintf(
			"application %s was modified concurrently (status is now '%s')", app.ID, stored.Status))
	}

	committed := app.Clone()
	committed.UpdatedAt = time.Now().UTC()
	s.apps[app.ID] = committed
	app.UpdatedAt = committed.UpdatedAt
	return nil
}

// MemoryHistoryStore is an in-memory HistoryStore.
type MemoryHistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]*StatusHistoryEntry
}

// NewMemoryHistoryStore creates a new in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{entries: make(map[string][]*StatusHistoryEntry)}
}

// Append records one history entry.
func (s *MemoryHistoryStore) Append(ctx context.Context, entry *StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *entry
	stored.ID = uuid.NewString()
	stored.RecordedAt = time.Now().UTC()
	s.entries[entry.ApplicationID] = append(s.entries[entry.ApplicationID], &stored)
	entry.ID = stored.ID
	entry.RecordedAt = stored.RecordedAt
	return nil
}

// GetByApplicationID returns the audit trail for one application, oldest
// first.
func (s *MemoryHistoryStore) GetByApplicationID(ctx context.Context, applicationID string) ([]*StatusHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.entries[applicationID]
	out := make([]*StatusHistoryEntry, 0, len(stored))
	for _, e := range stored {
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}
