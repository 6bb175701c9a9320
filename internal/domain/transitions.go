package domain

// allowedTransitions declares, per actor role and current status, which
// statuses that role may request next. Pairs absent from the map authorize
// nothing; terminal states have no entries for any role.
var allowedTransitions = map[Role]map[Status][]Status{
	RoleCollege: {
		StatusPending: {StatusCollegeVerified, StatusCollegeRejected},
	},
	RoleDepot: {
		StatusCollegeVerified: {StatusDepotApproved, StatusDepotRejected},
		StatusPaymentPending:  {StatusPaymentVerified},
		StatusPaymentVerified: {StatusIssued},
	},
	RoleStudent: {
		StatusDepotApproved: {StatusPaymentPending},
	},
}

// AllowedTransitions returns the statuses the given role may request from the
// given status. The returned slice is a copy; callers may not mutate the table.
func AllowedTransitions(role Role, from Status) []Status {
	allowed, ok := allowedTransitions[role][from]
	if !ok {
		return nil
	}
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// CanTransition reports whether role may move an application from one status
// to another.
func CanTransition(role Role, from, to Status) bool {
	for _, s := range allowedTransitions[role][from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanBeActedOnBy reports whether role has any available action from the given
// status.
func CanBeActedOnBy(role Role, from Status) bool {
	return len(allowedTransitions[role][from]) > 0
}
