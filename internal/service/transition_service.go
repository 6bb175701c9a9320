package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/transitdesk/be-concessions/internal/domain"
	"github.com/transitdesk/be-concessions/internal/errors"
	"github.com/transitdesk/be-concessions/internal/repository"
)

// TransitionRequest asks to move an application to a new status. Reason is
// required for rejections; Payment is required when requesting
// payment_pending.
type TransitionRequest struct {
	ApplicationID string
	Status        domain.Status
	Reason        string
	Payment       *domain.PaymentDetails
}

// RequestTransition is the single authorized entry point for all status
// changes. It loads the record, enforces actor scope and the transition
// table, applies side effects (rejection reason, payment snapshot, milestone
// timestamp) and persists the result in one atomic, optimistically-guarded
// write. Every failure leaves the stored record untouched.
//
// Notification and audit-trail dispatch happen after persistence and are
// best-effort: their failures are logged and swallowed, never rolled back.
func (s *ApplicationService) RequestTransition(ctx context.Context, actor Actor, req *TransitionRequest) (*domain.Application, error) {
	app, err := s.store.GetByID(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	if !app.ScopeMatches(actor.Role, actor.ScopeID) {
		return nil, errors.Forbidden("application does not belong to this actor")
	}

	if !domain.CanTransition(actor.Role, app.Status, req.Status) {
		return nil, errors.New(errors.ErrCodeInvalidTransition, fmt.Sprintf(
			"%s may not move application from '%s' to '%s'", actor.Role, app.Status, req.Status))
	}

	if req.Status.IsRejection() {
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			return nil, errors.New(errors.ErrCodeReasonRequired, "a rejection reason is required")
		}
		app.RejectionReason = &reason
	}

	if req.Status == domain.StatusPaymentPending {
		if err := req.Payment.Validate(); err != nil {
			return nil, err
		}
		app.Payment = req.Payment
	}

	previous := app.Status
	app.Status = req.Status

	if err := app.StampMilestone(req.Status, time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := s.store.ApplyTransition(ctx, app, previous); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("application_id", app.ID).
		Str("actor_role", string(actor.Role)).
		Str("actor_id", actor.ScopeID).
		Str("from", string(previous)).
		Str("to", string(app.Status)).
		Msg("Application transitioned")

	s.appendHistory(ctx, app, actor, previous)
	s.publisher.StatusChanged(ctx, app, previous, app.Status)

	return app, nil
}

// appendHistory writes a status audit entry, logging a warning on failure.
// The trail is supplemental: a failed append never fails the transition.
func (s *ApplicationService) appendHistory(ctx context.Context, app *domain.Application, actor Actor, previous domain.Status) {
	entry := &repository.StatusHistoryEntry{
		ApplicationID: app.ID,
		ActorRole:     actor.Role,
		ActorID:       actor.ScopeID,
		StatusBefore:  previous,
		StatusAfter:   app.Status,
		Reason:        app.RejectionReason,
	}
	if !app.Status.IsRejection() {
		entry.Reason = nil
	}
	if err := s.history.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("application_id", app.ID).
			Str("to", string(app.Status)).
			Msg("Failed to append status history entry")
	}
}
