package presence

import (
	"context"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
)

// Store persists the last-known location per driver. Implementations must
// make PutIfNewer atomic per driver so that late pings can never roll a
// position back.
type Store interface {
	// Get returns the stored location, or (nil, nil) when the driver has
	// never reported.
	Get(ctx context.Context, driverID string) (*models.DriverLocation, error)
	// PutIfNewer stores loc unless an entry with a strictly newer
	// timestamp already exists. Returns false when the write was refused.
	PutIfNewer(ctx context.Context, loc models.DriverLocation) (bool, error)
}

// MemoryStore is the in-process Store used in tests and single-node runs.
type MemoryStore struct {
	mu   sync.RWMutex
	locs map[string]models.DriverLocation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locs: make(map[string]models.DriverLocation)}
}

func (m *MemoryStore) Get(_ context.Context, driverID string) (*models.DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locs[driverID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (m *MemoryStore) PutIfNewer(_ context.Context, loc models.DriverLocation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.locs[loc.DriverID]; ok && cur.LastSeen.After(loc.LastSeen) {
		return false, nil
	}
	m.locs[loc.DriverID] = loc
	return true, nil
}
