package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func newRequestedRide(id string) *models.Ride {
	return &models.Ride{
		ID:        id,
		RiderName: "rider",
		Pickup:    "1 Main St",
		Dropoff:   "2 Oak Ave",
		Status:    models.StatusRequested,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAssignDriverCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateRide(ctx, newRequestedRide("r1")); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	ok, err := s.AssignDriver(ctx, "r1", "d1", now)
	if err != nil || !ok {
		t.Fatalf("first assign: ok=%v err=%v", ok, err)
	}
	ok, err = s.AssignDriver(ctx, "r1", "d2", now)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second assign must lose the swap")
	}

	r, err := s.GetRide(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if r.AssignedDriverID == nil || *r.AssignedDriverID != "d1" {
		t.Fatalf("assigned driver = %v, want d1", r.AssignedDriverID)
	}
	if r.AssignedAt == nil {
		t.Fatal("assigned_at not stamped")
	}
}

func TestAssignDriverConcurrentRace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateRide(ctx, newRequestedRide("r1")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wins := make([]bool, 2)
	for i, driver := range []string{"d1", "d2"} {
		wg.Add(1)
		go func(i int, driver string) {
			defer wg.Done()
			ok, err := s.AssignDriver(ctx, "r1", driver, time.Now())
			if err != nil {
				t.Errorf("assign %s: %v", driver, err)
			}
			wins[i] = ok
		}(i, driver)
	}
	wg.Wait()

	if wins[0] == wins[1] {
		t.Fatalf("exactly one assign must win, got %v", wins)
	}
	r, err := s.GetRide(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.StatusAssigned || r.AssignedDriverID == nil {
		t.Fatalf("ride after race: %+v", r)
	}
}

func TestUpdateStatusStampsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ride := newRequestedRide("r1")
	if err := s.CreateRide(ctx, ride); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.AssignDriver(ctx, "r1", "d1", time.Now()); !ok {
		t.Fatal("assign failed")
	}

	t1 := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	ok, err := s.UpdateStatus(ctx, "r1", models.StatusAssigned, models.StatusEnroute, t1)
	if err != nil || !ok {
		t.Fatalf("enroute: ok=%v err=%v", ok, err)
	}

	// a repeat of the same swap must fail the condition
	ok, err = s.UpdateStatus(ctx, "r1", models.StatusAssigned, models.StatusEnroute, t1.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("repeated transition must not win")
	}

	r, _ := s.GetRide(ctx, "r1")
	if r.EnrouteAt == nil || !r.EnrouteAt.Equal(t1) {
		t.Fatalf("enroute_at = %v, want %v", r.EnrouteAt, t1)
	}
}

func TestUpdateStatusUnknownRide(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.UpdateStatus(context.Background(), "missing", models.StatusAssigned, models.StatusEnroute, time.Now())
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRidesByStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		r := newRequestedRide(id)
		if err := s.CreateRide(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if ok, _ := s.AssignDriver(ctx, "b", "d1", time.Now()); !ok {
		t.Fatal("assign failed")
	}

	requested, err := s.ListRidesByStatus(ctx, models.StatusRequested, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(requested) != 2 {
		t.Fatalf("requested = %d, want 2", len(requested))
	}
	active, err := s.ListActiveRides(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "b" {
		t.Fatalf("active = %+v", active)
	}
}
