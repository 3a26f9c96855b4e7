package domain

// ValidationStatus is the review state of a risk or control as judged by its
// responsible parties.
type ValidationStatus string

const (
	StatusPendingValidation  ValidationStatus = "pending_validation"
	StatusPartiallyValidated ValidationStatus = "partially_validated"
	StatusValidated          ValidationStatus = "validated"
	StatusObserved           ValidationStatus = "observed"
	StatusRejected           ValidationStatus = "rejected"
)

func (s ValidationStatus) Valid() bool {
	switch s {
	case StatusPendingValidation, StatusPartiallyValidated, StatusValidated, StatusObserved, StatusRejected:
		return true
	}
	return false
}

// Label returns the display name for the status.
func (s ValidationStatus) Label() string {
	switch s {
	case StatusPendingValidation:
		return "Pending validation"
	case StatusPartiallyValidated:
		return "Partially validated"
	case StatusValidated:
		return "Validated"
	case StatusObserved:
		return "Observed"
	case StatusRejected:
		return "Rejected"
	}
	return string(s)
}

// AggregateValidationStatus reduces the statuses of the linked responsible
// parties to one display status. The precedence is a total order and must stay
// an explicit ordered check:
//
//	rejected > observed > validated (iff all) > partially_validated (some) > pending_validation
//
// With no linked responsibles the entity's own stored status is used.
func AggregateValidationStatus(statuses []ValidationStatus, own ValidationStatus) ValidationStatus {
	if len(statuses) == 0 {
		return own
	}

	anyValidated := false
	allValidated := true
	for _, status := range statuses {
		switch status {
		case StatusRejected:
			return StatusRejected
		case StatusValidated:
			anyValidated = true
		case StatusPartiallyValidated:
			anyValidated = true
			allValidated = false
		default:
			allValidated = false
		}
	}

	for _, status := range statuses {
		if status == StatusObserved {
			return StatusObserved
		}
	}

	if allValidated {
		return StatusValidated
	}
	if anyValidated {
		return StatusPartiallyValidated
	}
	return StatusPendingValidation
}
