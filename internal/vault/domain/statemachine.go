package domain

// ValidateStatusTransition checks one status move against the transition
// table. A same-state move is always permitted so repeated submissions of the
// same transition stay idempotent. CANCELLED is terminal.
func ValidateStatusTransition(from, to Status) error {
	if from == to {
		return nil
	}

	switch from {
	case StatusActive:
		switch to {
		case StatusPaused, StatusCancelled, StatusInsufficientBalance:
			return nil
		}
	case StatusPaused:
		switch to {
		case StatusActive, StatusCancelled:
			return nil
		}
	case StatusInsufficientBalance:
		switch to {
		case StatusActive, StatusCancelled:
			return nil
		}
	case StatusCancelled:
	}

	return ErrInvalidStatusTransition
}

// AllowedTransitions returns the statuses reachable from status, excluding the
// implicit same-state move.
func AllowedTransitions(status Status) []Status {
	switch status {
	case StatusActive:
		return []Status{StatusPaused, StatusCancelled, StatusInsufficientBalance}
	case StatusPaused, StatusInsufficientBalance:
		return []Status{StatusActive, StatusCancelled}
	default:
		return nil
	}
}

// CanTransition is a boolean convenience over ValidateStatusTransition.
func CanTransition(from, to Status) bool {
	return ValidateStatusTransition(from, to) == nil
}
