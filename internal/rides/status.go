// Package rides owns the ride lifecycle: booking creation and the status
// state machine. Transitions are strictly sequential except for
// cancellation, which is reachable from any non-terminal state.
package rides

import "github.com/example/ride-dispatch/internal/models"

// successor fixes the only legal forward step out of each status.
var successor = map[models.RideStatus]models.RideStatus{
	models.StatusRequested:  models.StatusAssigned,
	models.StatusAssigned:   models.StatusEnroute,
	models.StatusEnroute:    models.StatusArrived,
	models.StatusArrived:    models.StatusInProgress,
	models.StatusInProgress: models.StatusCompleted,
}

// IsTerminal reports whether no further transition is legal.
func IsTerminal(s models.RideStatus) bool {
	return s == models.StatusCompleted || s == models.StatusCancelled
}

// IsValidStatus reports whether s names a known lifecycle state.
func IsValidStatus(s models.RideStatus) bool {
	switch s {
	case models.StatusRequested, models.StatusAssigned, models.StatusEnroute,
		models.StatusArrived, models.StatusInProgress, models.StatusCompleted,
		models.StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is legal: the immediate
// successor, or cancellation of a non-terminal ride. Skipping ahead and
// re-applying a state are both illegal.
func CanTransition(from, to models.RideStatus) bool {
	if IsTerminal(from) {
		return false
	}
	if to == models.StatusCancelled {
		return true
	}
	return successor[from] == to
}
