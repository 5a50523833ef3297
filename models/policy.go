package models

// AllowedTransitions returns the set of statuses one step reachable from
// `status` by `role`. Total over all inputs: terminal statuses and
// unrecognized role/status pairs yield an empty set, which callers render as
// "no actions available" rather than an error.
func AllowedTransitions(role Role, status ClaimStatus) []ClaimStatus {
	switch role {
	case Role_Owner:
		switch status {
		case ClaimStatus_Pending:
			return []ClaimStatus{ClaimStatus_Confirmed, ClaimStatus_Cancelled}
		case ClaimStatus_Confirmed:
			return []ClaimStatus{ClaimStatus_Completed, ClaimStatus_Cancelled}
		}
	case Role_Claimer:
		switch status {
		case ClaimStatus_Pending:
			return []ClaimStatus{ClaimStatus_Cancelled}
		case ClaimStatus_Confirmed:
			return []ClaimStatus{ClaimStatus_Completed, ClaimStatus_Cancelled}
		}
	}
	return nil
}

// CanTransition reports whether the policy permits role to move a claim from
// one status to another in a single step.
func CanTransition(role Role, from, to ClaimStatus) bool {
	for _, allowed := range AllowedTransitions(role, from) {
		if allowed == to {
			return true
		}
	}
	return false
}
