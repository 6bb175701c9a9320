// Package service implements the application workflow business logic: record
// creation, reads, and the transition executor that is the single authorized
// entry point for all status changes.
package service

import (
	"context"

	"github.com/transitdesk/be-concessions/internal/domain"
	"github.com/transitdesk/be-concessions/internal/errors"
	"github.com/transitdesk/be-concessions/internal/logger"
	"github.com/transitdesk/be-concessions/internal/repository"
)

// Actor is the authenticated identity performing an operation. Role decides
// which transitions are reachable; ScopeID is matched against the
// application's owning student/college/depot.
type Actor struct {
	Role    domain.Role
	ScopeID string
}

// Publisher receives status-change events after a transition is persisted.
// Implementations must be best-effort: they are never allowed to fail a
// transition.
type Publisher interface {
	StatusChanged(ctx context.Context, app *domain.Application, previous, next domain.Status)
}

// ApplicationService handles concession application business logic.
type ApplicationService struct {
	store     repository.ApplicationStore
	history   repository.HistoryStore
	publisher Publisher
	log       *logger.Logger
}

// NewApplicationService creates a new application service.
func NewApplicationService(
	store repository.ApplicationStore,
	history repository.HistoryStore,
	publisher Publisher,
	log *logger.Logger,
) *ApplicationService {
	return &ApplicationService{
		store:     store,
		history:   history,
		publisher: publisher,
		log:       log,
	}
}

// CreateApplicationRequest represents a create application request.
type CreateApplicationRequest struct {
	CollegeID  string `json:"college_id"`
	DepotID    string `json:"depot_id"`
	StartPoint string `json:"start_point"`
	EndPoint   string `json:"end_point"`
	IsRenewal  bool   `json:"is_renewal"`
}

// CreateApplication creates a new application in the pending state, owned by
// the acting student.
func (s *ApplicationService) CreateApplication(ctx context.Context, actor Actor, req *CreateApplicationRequest) (*domain.Application, error) {
	if actor.Role != domain.RoleStudent {
		return nil, errors.Forbidden("only students can create applications")
	}
	if req.CollegeID == "" {
		return nil, errors.InvalidInput("college_id", "college is required")
	}
	if req.DepotID == "" {
		return nil, errors.InvalidInput("depot_id", "depot is required")
	}
	if req.StartPoint == "" {
		return nil, errors.InvalidInput("start_point", "start point is required")
	}
	if req.EndPoint == "" {
		return nil, errors.InvalidInput("end_point", "end point is required")
	}

	app := domain.NewApplication(actor.ScopeID, req.CollegeID, req.DepotID, req.StartPoint, req.EndPoint, req.IsRenewal)

	if err := s.store.Create(ctx, app); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("student_id", app.StudentID).
		Str("college_id", app.CollegeID).
		Str("depot_id", app.DepotID).
		Bool("is_renewal", app.IsRenewal).
		Msg("Application created")

	s.publisher.StatusChanged(ctx, app, "", domain.StatusPending)

	return app, nil
}

// GetApplication retrieves an application the actor is scoped to.
func (s *ApplicationService) GetApplication(ctx context.Context, actor Actor, id string) (*domain.Application, error) {
	app, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.ScopeMatches(actor.Role, actor.ScopeID) {
		return nil, errors.Forbidden("application does not belong to this actor")
	}
	return app, nil
}

// ListApplications lists the actor's applications, optionally filtered by
// status, with pagination.
func (s *ApplicationService) ListApplications(ctx context.Context, actor Actor, status *domain.Status, page, pageSize int) ([]*domain.Application, int64, error) {
	filter := repository.ListFilter{
		Status: status,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}

	// Scope the filter to what the actor owns.
	switch actor.Role {
	case domain.RoleStudent:
		filter.StudentID = &actor.ScopeID
	case domain.RoleCollege:
		filter.CollegeID = &actor.ScopeID
	case domain.RoleDepot:
		filter.DepotID = &actor.ScopeID
	default:
		return nil, 0, errors.Forbidden("unknown actor role")
	}

	return s.store.List(ctx, filter)
}

// GetHistory returns the status audit trail for an application the actor is
// scoped to.
func (s *ApplicationService) GetHistory(ctx context.Context, actor Actor, id string) ([]*repository.StatusHistoryEntry, error) {
	app, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.ScopeMatches(actor.Role, actor.ScopeID) {
		return nil, errors.Forbidden("application does not belong to this actor")
	}
	return s.history.GetByApplicationID(ctx, app.ID)
}
