// Package presence maintains last-known driver locations and derives
// online/stale/offline classification from ping age. All age computations
// take a caller-supplied now so the package stays clock-free.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ride-dispatch/internal/errs"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// ErrOutOfOrderPing is returned when a ping carries a timestamp older than
// the stored one. Late pings are dropped, never applied, so a delayed
// packet can never move a driver backwards.
var ErrOutOfOrderPing = errors.New("ping older than stored location")

const (
	// DefaultOnlineWindow is the inclusive bound for "online".
	DefaultOnlineWindow = 5 * time.Minute
	// DefaultStaleWindow is the inclusive bound for "stale".
	DefaultStaleWindow = 15 * time.Minute
	// DefaultStaleness is the availability window auto-assign uses when
	// the caller does not pass one.
	DefaultStaleness = 5 * time.Minute
)

// Tracker records pings and answers presence queries against a Store.
type Tracker struct {
	store  Store
	online time.Duration
	stale  time.Duration
}

// NewTracker builds a tracker. Non-positive windows fall back to the
// defaults; a stale window shorter than the online window is lifted to it.
func NewTracker(store Store, online, stale time.Duration) *Tracker {
	if online <= 0 {
		online = DefaultOnlineWindow
	}
	if stale <= 0 {
		stale = DefaultStaleWindow
	}
	if stale < online {
		stale = online
	}
	return &Tracker{store: store, online: online, stale: stale}
}

// RecordPing validates and applies a position report. Out-of-range
// coordinates are rejected with a ValidationError, never clamped.
// Out-of-order pings return ErrOutOfOrderPing.
func (t *Tracker) RecordPing(ctx context.Context, p models.LocationPing) error {
	if p.DriverID == "" {
		return &errs.ValidationError{Field: "driver_id", Reason: "must not be empty"}
	}
	if err := geo.ValidateCoords(p.Lat, p.Lng); err != nil {
		return err
	}
	if p.Timestamp.IsZero() {
		return &errs.ValidationError{Field: "timestamp_utc", Reason: "must be set"}
	}
	loc := models.DriverLocation{
		DriverID:   p.DriverID,
		Lat:        p.Lat,
		Lng:        p.Lng,
		HeadingDeg: p.HeadingDeg,
		SpeedMPH:   p.SpeedMPH,
		AccuracyM:  p.AccuracyM,
		LastSeen:   p.Timestamp.UTC(),
	}
	applied, err := t.store.PutIfNewer(ctx, loc)
	if err != nil {
		return fmt.Errorf("store ping for driver %s: %w", p.DriverID, err)
	}
	if !applied {
		return ErrOutOfOrderPing
	}
	return nil
}

// Presence classifies one driver at the given instant. A driver that has
// never reported is offline with no fix.
func (t *Tracker) Presence(ctx context.Context, driverID string, now time.Time) (models.Presence, error) {
	loc, err := t.store.Get(ctx, driverID)
	if err != nil {
		return models.Presence{}, fmt.Errorf("load location for driver %s: %w", driverID, err)
	}
	if loc == nil {
		return models.Presence{DriverID: driverID, Status: models.PresenceOffline}, nil
	}
	age := now.Sub(loc.LastSeen)
	return models.Presence{
		DriverID:   driverID,
		Status:     t.classify(age),
		AgeSeconds: age.Seconds(),
		Lat:        loc.Lat,
		Lng:        loc.Lng,
		HasFix:     true,
	}, nil
}

// classify uses inclusive bounds: an age exactly at a window edge counts
// as inside it.
func (t *Tracker) classify(age time.Duration) models.PresenceStatus {
	switch {
	case age <= t.online:
		return models.PresenceOnline
	case age <= t.stale:
		return models.PresenceStale
	default:
		return models.PresenceOffline
	}
}

// Candidate pairs a driver with its last-known location for matching.
type Candidate struct {
	Driver   models.Driver
	Location models.DriverLocation
}

// ListAvailable returns the subset of drivers that are active and whose
// ping age at now is within staleness (inclusive). Drivers without any
// recorded position are skipped, never an error. Result ordering is
// unspecified; ranking belongs to the matcher.
func (t *Tracker) ListAvailable(ctx context.Context, drivers []models.Driver, now time.Time, staleness time.Duration) ([]Candidate, error) {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	out := make([]Candidate, 0, len(drivers))
	for _, d := range drivers {
		if !d.Active {
			continue
		}
		loc, err := t.store.Get(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("load location for driver %s: %w", d.ID, err)
		}
		if loc == nil {
			continue
		}
		if now.Sub(loc.LastSeen) > staleness {
			continue
		}
		out = append(out, Candidate{Driver: d, Location: *loc})
	}
	return out, nil
}
