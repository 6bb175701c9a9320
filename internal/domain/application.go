package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/transitdesk/be-concessions/internal/errors"
)

// PaymentDetails is the payment snapshot captured when a student submits
// payment. It persists unchanged through payment_verified and issued.
type PaymentDetails struct {
	TransactionID   string `json:"transaction_id"`
	TransactionDate string `json:"transaction_date"` // YYYY-MM-DD
	AccountHolder   string `json:"account_holder"`
	Amount          int64  `json:"amount"` // minor units (paise)
	PaymentMethod   string `json:"payment_method"`
}

// Validate checks that all five payment fields are present and the amount is
// positive.
func (p *PaymentDetails) Validate() error {
	if p == nil {
		return errors.New(errors.ErrCodeInvalidPayment, "payment details are required")
	}
	if p.TransactionID == "" {
		return errors.New(errors.ErrCodeInvalidPayment, "transaction_id is required")
	}
	if p.TransactionDate == "" {
		return errors.New(errors.ErrCodeInvalidPayment, "transaction_date is required")
	}
	if _, err := time.Parse("2006-01-02", p.TransactionDate); err != nil {
		return errors.New(errors.ErrCodeInvalidPayment, "transaction_date must be YYYY-MM-DD")
	}
	if p.AccountHolder == "" {
		return errors.New(errors.ErrCodeInvalidPayment, "account_holder is required")
	}
	if p.Amount <= 0 {
		return errors.New(errors.ErrCodeInvalidPayment, "amount must be positive")
	}
	if p.PaymentMethod == "" {
		return errors.New(errors.ErrCodeInvalidPayment, "payment_method is required")
	}
	return nil
}

// Application is a student transit-concession application. Only Status and
// the transition side-effect fields (rejection reason, payment snapshot,
// milestone timestamps) change after creation; everything else is immutable.
type Application struct {
	ID         string `json:"id"`
	StudentID  string `json:"student_id"`
	CollegeID  string `json:"college_id"`
	DepotID    string `json:"depot_id"`
	StartPoint string `json:"start_point"`
	EndPoint   string `json:"end_point"`
	IsRenewal  bool   `json:"is_renewal"`

	Status          Status          `json:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	Payment         *PaymentDetails `json:"payment_details,omitempty"`

	ApplicationDate   time.Time  `json:"application_date"`
	CollegeVerifiedAt *time.Time `json:"college_verified_at,omitempty"`
	DepotApprovedAt   *time.Time `json:"depot_approved_at,omitempty"`
	PaymentVerifiedAt *time.Time `json:"payment_verified_at,omitempty"`
	IssuedAt          *time.Time `json:"issued_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewApplication creates an application in the pending state.
func NewApplication(studentID, collegeID, depotID, startPoint, endPoint string, isRenewal bool) *Application {
	now := time.Now().UTC()
	return &Application{
		ID:              uuid.NewString(),
		StudentID:       studentID,
		CollegeID:       collegeID,
		DepotID:         depotID,
		StartPoint:      startPoint,
		EndPoint:        endPoint,
		IsRenewal:       isRenewal,
		Status:          StatusPending,
		ApplicationDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsTerminal returns true when the application can no longer be transitioned.
func (a *Application) IsTerminal() bool {
	return a.Status.IsTerminal()
}

// CanBeActedOnBy reports whether role has any available action on this
// application in its current status.
func (a *Application) CanBeActedOnBy(role Role) bool {
	return CanBeActedOnBy(role, a.Status)
}

// ScopeMatches checks that the acting entity owns this application: colleges
// act on their collegeId, depots on their depotId, students on their own
// studentId.
func (a *Application) ScopeMatches(role Role, scopeID string) bool {
	switch role {
	case RoleCollege:
		return a.CollegeID == scopeID
	case RoleDepot:
		return a.DepotID == scopeID
	case RoleStudent:
		return a.StudentID == scopeID
	}
	return false
}

// StampMilestone sets the milestone timestamp reached by transitioning into
// to. payment_pending stamps nothing. A milestone records "decision made at
// this stage", so depot_rejected stamps DepotApprovedAt just as depot_approved
// does. An already-set milestone is never overwritten; hitting one indicates
// the terminal-state rule was bypassed and is reported as an internal error.
func (a *Application) StampMilestone(to Status, now time.Time) error {
	var field **time.Time
	switch to {
	case StatusCollegeVerified, StatusCollegeRejected:
		field = &a.CollegeVerifiedAt
	case StatusDepotApproved, StatusDepotRejected:
		field = &a.DepotApprovedAt
	case StatusPaymentVerified:
		field = &a.PaymentVerifiedAt
	case StatusIssued:
		field = &a.IssuedAt
	case StatusPaymentPending:
		return nil
	default:
		return nil
	}
	if *field != nil {
		return errors.New(errors.ErrCodeInternal, "milestone timestamp already set")
	}
	*field = &now
	return nil
}

// Clone returns a deep copy of the application.
func (a *Application) Clone() *Application {
	c := *a
	if a.RejectionReason != nil {
		r := *a.RejectionReason
		c.RejectionReason = &r
	}
	if a.Payment != nil {
		p := *a.Payment
		c.Payment = &p
	}
	c.CollegeVerifiedAt = cloneTime(a.CollegeVerifiedAt)
	c.DepotApprovedAt = cloneTime(a.DepotApprovedAt)
	c.PaymentVerifiedAt = cloneTime(a.PaymentVerifiedAt)
	c.IssuedAt = cloneTime(a.IssuedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
