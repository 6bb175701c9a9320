// Package domain contains the concession application record, its status
// state machine and the role-gated transition table.
//
// Status graph:
//
//	pending ──► college_verified ──► depot_approved ──► payment_pending ──► payment_verified ──► issued
//	    │               │
//	    ▼               ▼
//	college_rejected  depot_rejected
//
// college_rejected, depot_rejected and issued are terminal states.
package domain

import (
	"fmt"
)

// Status values mirror the application_status enum in PostgreSQL.
type Status string

const (
	StatusPending         Status = "pending"
	StatusCollegeVerified Status = "college_verified"
	StatusCollegeRejected Status = "college_rejected"
	StatusDepotApproved   Status = "depot_approved"
	StatusDepotRejected   Status = "depot_rejected"
	StatusPaymentPending  Status = "payment_pending"
	StatusPaymentVerified Status = "payment_verified"
	StatusIssued          Status = "issued"
)

// AllStatuses lists every valid status, in workflow order.
var AllStatuses = []Status{
	StatusPending,
	StatusCollegeVerified,
	StatusCollegeRejected,
	StatusDepotApproved,
	StatusDepotRejected,
	StatusPaymentPending,
	StatusPaymentVerified,
	StatusIssued,
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusCollegeVerified, StatusCollegeRejected,
		StatusDepotApproved, StatusDepotRejected,
		StatusPaymentPending, StatusPaymentVerified, StatusIssued:
		return st, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// IsTerminal returns true when no further transitions are permitted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCollegeRejected, StatusDepotRejected, StatusIssued:
		return true
	}
	return false
}

// IsRejection returns true for the two rejected states. Transitions into a
// rejection state require a non-empty reason.
func (s Status) IsRejection() bool {
	return s == StatusCollegeRejected || s == StatusDepotRejected
}

// Role identifies the kind of actor requesting a transition.
type Role string

const (
	RoleStudent Role = "student"
	RoleCollege Role = "college"
	RoleDepot   Role = "depot"
)

// ParseRole converts a raw string to a Role, returning an error for unknown
// values.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleStudent, RoleCollege, RoleDepot:
		return r, nil
	}
	return "", fmt.Errorf("unknown actor role %q", s)
}
