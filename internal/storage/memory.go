package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// MemoryStore is an in-process DriverStore + RideStore. The single mutex
// gives the same conditional-update semantics the Postgres store gets from
// RowsAffected, which is what the double-assignment guarantee rests on.
type MemoryStore struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
	rides   map[string]models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers: make(map[string]models.Driver),
		rides:   make(map[string]models.Ride),
	}
}

func (m *MemoryStore) CreateDriver(_ context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = *d
	return nil
}

func (m *MemoryStore) GetDriver(_ context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) ListDrivers(_ context.Context, activeOnly bool) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetDriverActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Active = active
	m.drivers[id] = d
	return nil
}

func (m *MemoryStore) CreateRide(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRide(_ context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) AssignDriver(_ context.Context, rideID, driverID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != models.StatusRequested {
		return false, nil
	}
	r.Status = models.StatusAssigned
	r.AssignedDriverID = &driverID
	t := at.UTC()
	r.AssignedAt = &t
	m.rides[rideID] = r
	return true, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, rideID string, from, to models.RideStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	stampOnce(&r, to, at.UTC())
	m.rides[rideID] = r
	return true, nil
}

func (m *MemoryStore) ListRidesByStatus(_ context.Context, status models.RideStatus, limit int) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Ride, 0)
	for _, r := range m.rides {
		if r.Status == status {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return clip(out, limit), nil
}

func (m *MemoryStore) ListActiveRides(_ context.Context, limit int) ([]models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Ride, 0)
	for _, r := range m.rides {
		switch r.Status {
		case models.StatusAssigned, models.StatusEnroute, models.StatusArrived, models.StatusInProgress:
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return clip(out, limit), nil
}

// stampOnce sets the timestamp column matching the new status only when it
// has not been set before.
func stampOnce(r *models.Ride, to models.RideStatus, at time.Time) {
	set := func(p **time.Time) {
		if *p == nil {
			*p = &at
		}
	}
	switch to {
	case models.StatusEnroute:
		set(&r.EnrouteAt)
	case models.StatusArrived:
		set(&r.ArrivedAt)
	case models.StatusInProgress:
		set(&r.InProgressAt)
	case models.StatusCompleted:
		set(&r.CompletedAt)
	case models.StatusCancelled:
		set(&r.CancelledAt)
	}
}

func sortNewestFirst(rides []models.Ride) {
	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.After(rides[j].CreatedAt) })
}

func clip(rides []models.Ride, limit int) []models.Ride {
	if limit > 0 && len(rides) > limit {
		return rides[:limit]
	}
	return rides
}
