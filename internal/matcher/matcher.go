// Package matcher selects drivers for rides. Two paths exist: manual
// assignment by an operator and automatic nearest-match. Both funnel into
// the store's conditional requested->assigned swap, so two racing calls
// can never both win no matter how many processes serve requests.
//
// Presence policy: manual assignment requires only an active driver —
// staleness is advisory when a human picks. Auto-assign requires active
// plus a ping inside the staleness window. The asymmetry is deliberate and
// mirrors how dispatch operators actually work.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/ride-dispatch/internal/errs"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/geocode"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/storage"
)

// distanceEpsilonMiles is the tolerance below which two candidate
// distances count as tied.
const distanceEpsilonMiles = 1e-9

// Notifier pushes an assignment notice to the chosen driver. Delivery is
// best-effort; a failed push never rolls back an assignment.
type Notifier interface {
	RideAssigned(driverID string, notice models.AssignmentNotice) error
}

// Service wires the matcher's collaborators.
type Service struct {
	Rides    storage.RideStore
	Drivers  storage.DriverStore
	Presence *presence.Tracker
	Geocoder geocode.Geocoder // optional, consulted when a ride carries no pickup coords
	Notifier Notifier         // optional
	SpeedMPH float64
	Logger   *slog.Logger
}

func (s *Service) speed() float64 {
	if s.SpeedMPH > 0 {
		return s.SpeedMPH
	}
	return geo.DefaultSpeedMPH
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Assign manually assigns a driver to a requested ride. Fails with
// InvalidStateError when the ride is not in requested (a second call on an
// already-assigned ride fails, never silently overwrites) and with
// DriverUnavailableError when the driver is unknown or inactive.
func (s *Service) Assign(ctx context.Context, rideID, driverID string, now time.Time) (*models.Ride, error) {
	r, err := s.Rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusRequested {
		return nil, &errs.InvalidStateError{RideID: rideID, Status: string(r.Status)}
	}

	d, err := s.Drivers.GetDriver(ctx, driverID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &errs.DriverUnavailableError{DriverID: driverID, Reason: "driver not found"}
	}
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, &errs.DriverUnavailableError{DriverID: driverID, Reason: "driver is inactive"}
	}

	if err := s.commit(ctx, r, driverID, now, 0, 0); err != nil {
		return nil, err
	}
	return s.Rides.GetRide(ctx, rideID)
}

// AutoAssign picks the nearest available driver to the ride's pickup
// point and assigns it. Ties within floating-point tolerance go to the
// most recent last_seen, then to the lowest driver id, so the outcome is
// deterministic. Returns the winning distance and ETA.
func (s *Service) AutoAssign(ctx context.Context, rideID string, now time.Time, staleness time.Duration) (*models.MatchResult, error) {
	if staleness <= 0 {
		staleness = presence.DefaultStaleness
	}

	r, err := s.Rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusRequested {
		return nil, &errs.InvalidStateError{RideID: rideID, Status: string(r.Status)}
	}

	pickup, err := s.pickupCoords(ctx, r)
	if err != nil {
		return nil, err
	}

	active, err := s.Drivers.ListDrivers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active drivers: %w", err)
	}
	candidates, err := s.Presence.ListAvailable(ctx, active, now, staleness)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, &errs.NoDriversAvailableError{StalenessMinutes: staleness.Minutes()}
	}

	best := pickNearest(candidates, pickup)
	dist := geo.HaversineMiles(best.Location.Lat, best.Location.Lng, pickup.Lat, pickup.Lng)
	eta, err := geo.ETAMinutes(dist, s.speed())
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, r, best.Driver.ID, now, dist, eta); err != nil {
		return nil, err
	}
	s.log().Info("auto-assigned ride",
		"ride_id", rideID, "driver_id", best.Driver.ID,
		"distance_miles", dist, "eta_minutes", eta)
	return &models.MatchResult{
		RideID:        rideID,
		DriverID:      best.Driver.ID,
		DistanceMiles: dist,
		ETAMinutes:    eta,
	}, nil
}

// pickupCoords returns the ride's resolved pickup point, consulting the
// geocoder once if the booking never resolved. Failure is typed, never a
// defaulted coordinate.
func (s *Service) pickupCoords(ctx context.Context, r *models.Ride) (models.Coord, error) {
	if r.PickupLat != nil && r.PickupLng != nil {
		return models.Coord{Lat: *r.PickupLat, Lng: *r.PickupLng}, nil
	}
	if s.Geocoder == nil {
		return models.Coord{}, &errs.GeocodeUnavailableError{Address: r.Pickup}
	}
	coord, err := s.Geocoder.Resolve(ctx, r.Pickup)
	if err != nil {
		return models.Coord{}, &errs.GeocodeUnavailableError{Address: r.Pickup, Err: err}
	}
	return coord, nil
}

// pickNearest scans candidates for the minimum haversine distance to
// pickup, breaking ties by freshest last_seen and then lowest driver id.
func pickNearest(candidates []presence.Candidate, pickup models.Coord) presence.Candidate {
	best := candidates[0]
	bestDist := geo.HaversineMiles(best.Location.Lat, best.Location.Lng, pickup.Lat, pickup.Lng)
	for _, c := range candidates[1:] {
		d := geo.HaversineMiles(c.Location.Lat, c.Location.Lng, pickup.Lat, pickup.Lng)
		switch {
		case d < bestDist-distanceEpsilonMiles:
			best, bestDist = c, d
		case math.Abs(d-bestDist) <= distanceEpsilonMiles:
			if c.Location.LastSeen.After(best.Location.LastSeen) ||
				(c.Location.LastSeen.Equal(best.Location.LastSeen) && c.Driver.ID < best.Driver.ID) {
				best, bestDist = c, d
			}
		}
	}
	return best
}

// commit performs the atomic requested->assigned swap and fires the
// best-effort notification.
func (s *Service) commit(ctx context.Context, r *models.Ride, driverID string, now time.Time, dist float64, eta int) error {
	won, err := s.Rides.AssignDriver(ctx, r.ID, driverID, now)
	if err != nil {
		return fmt.Errorf("assign ride %s: %w", r.ID, err)
	}
	if !won {
		// a concurrent caller won the swap after our status read
		return &errs.InvalidStateError{RideID: r.ID, Status: string(models.StatusAssigned), Reason: "ride was assigned concurrently"}
	}
	if s.Notifier != nil {
		notice := models.AssignmentNotice{
			RideID:        r.ID,
			DriverID:      driverID,
			Pickup:        r.Pickup,
			Dropoff:       r.Dropoff,
			DistanceMiles: dist,
			ETAMinutes:    eta,
		}
		if err := s.Notifier.RideAssigned(driverID, notice); err != nil {
			s.log().Warn("assignment push failed", "ride_id", r.ID, "driver_id", driverID, "error", err)
		}
	}
	return nil
}
