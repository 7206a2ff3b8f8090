package entity

// Lifecycle states.
const (
	StatusSubmitted  = "Submitted"
	StatusInProgress = "In Progress"
	StatusDeclined   = "Declined"
	StatusCompleted  = "Completed"
)

// StatusFilterAll selects every status on the dashboard.
const StatusFilterAll = "All"

// Statuses lists the lifecycle states in dashboard order.
var Statuses = []string{StatusSubmitted, StatusInProgress, StatusDeclined, StatusCompleted}

// ValidStatusTransitions lists the allowed moves out of each state.
// Every state may move to every other; Completed is not terminal.
var ValidStatusTransitions = map[string][]string{
	StatusSubmitted:  {StatusInProgress, StatusDeclined, StatusCompleted},
	StatusInProgress: {StatusSubmitted, StatusDeclined, StatusCompleted},
	StatusDeclined:   {StatusSubmitted, StatusInProgress, StatusCompleted},
	StatusCompleted:  {StatusSubmitted, StatusInProgress, StatusDeclined},
}

// IsValidStatus reports whether s is one of the four lifecycle states.
func IsValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// RequiresMessage reports whether moving into s needs a coordinator message.
func RequiresMessage(s string) bool {
	return s == StatusInProgress || s == StatusDeclined || s == StatusCompleted
}

// CanTransition reports whether from → to is allowed. Staying in place is
// always allowed so a coordinator can rewrite the message. A blank or
// unrecognised from, as found in hand-edited rows, may move anywhere.
func CanTransition(from, to string) bool {
	if !IsValidStatus(to) {
		return false
	}
	if from == "" || from == to || !IsValidStatus(from) {
		return true
	}
	for _, s := range ValidStatusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EffectiveStatus maps a blank cell to Submitted, as rows written before the
// status column existed have none.
func EffectiveStatus(s string) string {
	if s == "" {
		return StatusSubmitted
	}
	return s
}
