// Package repository provides persistence for concession applications: the
// store contracts, a PostgreSQL implementation on pgx and an in-memory
// implementation used in tests and embedded deployments.
package repository

import (
	"context"
	"time"

	"github.com/transitdesk/be-concessions/internal/domain"
)

// ListFilter narrows and pages List results. Nil fields match everything.
type ListFilter struct {
	Status    *domain.Status
	StudentID *string
	CollegeID *string
	DepotID   *string
	Limit     int
	Offset    int
}

// ApplicationStore persists application records.
type ApplicationStore interface {
	// Create inserts a new application.
	Create(ctx context.Context, app *domain.Application) error

	// GetByID retrieves one application.
	GetByID(ctx context.Context, id string) (*domain.Application, error)

	// List retrieves applications matching the filter plus the total count.
	List(ctx context.Context, filter ListFilter) ([]*domain.Application, int64, error)

	// ApplyTransition persists a mutated application in a single atomic
	// write, guarded by optimistic concurrency: the write only succeeds when
	// the stored status still equals expected (the status the caller loaded).
	// A lost race yields a CONFLICT error; a missing row yields NOT_FOUND.
	ApplyTransition(ctx context.Context, app *domain.Application, expected domain.Status) error
}

// StatusHistoryEntry is one immutable record in an application's audit trail.
type StatusHistoryEntry struct {
	ID            string        `json:"id"`
	ApplicationID string        `json:"application_id"`
	ActorRole     domain.Role   `json:"actor_role"`
	ActorID       string        `json:"actor_id"`
	StatusBefore  domain.Status `json:"status_before"`
	StatusAfter   domain.Status `json:"status_after"`
	Reason        *string       `json:"reason,omitempty"`
	RecordedAt    time.Time     `json:"recorded_at"`
}

// HistoryStore appends and reads the append-only status audit trail.
type HistoryStore interface {
	Append(ctx context.Context, entry *StatusHistoryEntry) error
	GetByApplicationID(ctx context.Context, applicationID string) ([]*StatusHistoryEntry, error)
}
