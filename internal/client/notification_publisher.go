// Package client holds outbound collaborators: the NATS notification
// publisher that fans status changes out to the notifications service.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/transitdesk/be-concessions/internal/domain"
)

// NotificationPublisher publishes application status events to NATS for
// consumption by the notifications service (email/SMS delivery lives there).
//
// Subject convention: notifications.concessions.<event_type>
// Event types: application_submitted, college_verified, college_rejected,
//              depot_approved, depot_rejected, payment_submitted,
//              payment_verified, pass_issued
//
// All publish operations are non-fatal: errors are logged but never
// propagated, so notification failures never interrupt or roll back a
// transition.
type NotificationPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// StatusEvent is the JSON schema published to NATS.
type StatusEvent struct {
	EventType      string         `json:"event_type"`
	ApplicationID  string         `json:"application_id"`
	StudentID      string         `json:"student_id"`
	CollegeID      string         `json:"college_id"`
	DepotID        string         `json:"depot_id"`
	PreviousStatus domain.Status  `json:"previous_status"`
	NewStatus      domain.Status  `json:"new_status"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nc: nc, log: log}
}

// eventTypes maps each reachable status onto its published event type.
var eventTypes = map[domain.Status]string{
	domain.StatusPending:         "application_submitted",
	domain.StatusCollegeVerified: "college_verified",
	domain.StatusCollegeRejected: "college_rejected",
	domain.StatusDepotApproved:   "depot_approved",
	domain.StatusDepotRejected:   "depot_rejected",
	domain.StatusPaymentPending:  "payment_submitted",
	domain.StatusPaymentVerified: "payment_verified",
	domain.StatusIssued:          "pass_issued",
}

// StatusChanged publishes a status-change event.
// Subject: notifications.concessions.<event_type>
func (p *NotificationPublisher) StatusChanged(ctx context.Context, app *domain.Application, previous, next domain.Status) {
	if p.nc == nil {
		return
	}

	eventType, ok := eventTypes[next]
	if !ok {
		return
	}

	event := &StatusEvent{
		EventType:      eventType,
		ApplicationID:  app.ID,
		StudentID:      app.StudentID,
		CollegeID:      app.CollegeID,
		DepotID:        app.DepotID,
		PreviousStatus: previous,
		NewStatus:      next,
	}
	if app.RejectionReason != nil && next.IsRejection() {
		event.Payload = map[string]any{"reason": *app.RejectionReason}
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.concessions.%s", eventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("application_id", app.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("application_id", app.ID).
		Msg("notification: event published")
}
