// Package storage defines the persistence contract the dispatch core
// relies on. The critical piece is atomic compare-and-swap on ride status:
// AssignDriver and UpdateStatus must apply the read-check-write as one
// conditional update so that racing callers cannot both win, even across
// processes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrNotFound is returned when a driver or ride does not exist.
var ErrNotFound = errors.New("not found")

// DriverStore persists administrative driver records.
type DriverStore interface {
	CreateDriver(ctx context.Context, d *models.Driver) error
	GetDriver(ctx context.Context, id string) (*models.Driver, error)
	// ListDrivers returns all drivers, or only active ones.
	ListDrivers(ctx context.Context, activeOnly bool) ([]models.Driver, error)
	SetDriverActive(ctx context.Context, id string, active bool) error
}

// RideStore persists rides and enforces the conditional-update contract.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)

	// AssignDriver atomically moves the ride from requested to assigned,
	// recording the driver and assignment time. It returns false without
	// error when the ride was not in requested at the moment of the swap;
	// whichever racing caller observes requested wins.
	AssignDriver(ctx context.Context, rideID, driverID string, at time.Time) (bool, error)

	// UpdateStatus atomically moves the ride from exactly `from` to `to`,
	// stamping the matching timestamp only if it is not already set.
	// Returns false without error when the ride was no longer in `from`.
	UpdateStatus(ctx context.Context, rideID string, from, to models.RideStatus, at time.Time) (bool, error)

	ListRidesByStatus(ctx context.Context, status models.RideStatus, limit int) ([]models.Ride, error)
	// ListActiveRides returns rides in assigned/enroute/arrived/in_progress.
	ListActiveRides(ctx context.Context, limit int) ([]models.Ride, error)
}
