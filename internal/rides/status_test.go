package rides

import (
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestCanTransitionSequential(t *testing.T) {
	legal := [][2]models.RideStatus{
		{models.StatusRequested, models.StatusAssigned},
		{models.StatusAssigned, models.StatusEnroute},
		{models.StatusEnroute, models.StatusArrived},
		{models.StatusArrived, models.StatusInProgress},
		{models.StatusInProgress, models.StatusCompleted},
	}
	for _, p := range legal {
		if !CanTransition(p[0], p[1]) {
			t.Fatalf("%s -> %s should be legal", p[0], p[1])
		}
	}
}

func TestCanTransitionRejectsSkipsAndRegressions(t *testing.T) {
	illegal := [][2]models.RideStatus{
		{models.StatusRequested, models.StatusInProgress}, // skip ahead
		{models.StatusAssigned, models.StatusInProgress},
		{models.StatusAssigned, models.StatusCompleted},
		{models.StatusEnroute, models.StatusAssigned}, // regression
		{models.StatusEnroute, models.StatusEnroute},  // re-apply
		{models.StatusCompleted, models.StatusCancelled},
		{models.StatusCancelled, models.StatusAssigned},
	}
	for _, p := range illegal {
		if CanTransition(p[0], p[1]) {
			t.Fatalf("%s -> %s should be illegal", p[0], p[1])
		}
	}
}

func TestCancelFromAnyNonTerminal(t *testing.T) {
	nonTerminal := []models.RideStatus{
		models.StatusRequested, models.StatusAssigned, models.StatusEnroute,
		models.StatusArrived, models.StatusInProgress,
	}
	for _, s := range nonTerminal {
		if !CanTransition(s, models.StatusCancelled) {
			t.Fatalf("cancel from %s should be legal", s)
		}
	}
}

func TestIsValidStatus(t *testing.T) {
	if IsValidStatus(models.RideStatus("teleported")) {
		t.Fatal("unknown status accepted")
	}
	if !IsValidStatus(models.StatusEnroute) {
		t.Fatal("enroute rejected")
	}
}
