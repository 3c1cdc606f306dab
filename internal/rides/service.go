package rides

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/errs"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/geocode"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/storage"
)

// BookingRequest is the inbound booking payload.
type BookingRequest struct {
	RiderName   string `json:"rider_name"`
	RiderPhone  string `json:"rider_phone"`
	Pickup      string `json:"pickup"`
	Dropoff     string `json:"dropoff"`
	ServiceType string `json:"service_type"`
}

// Service creates rides and applies driver status updates.
type Service struct {
	Store    storage.RideStore
	Geocoder geocode.Geocoder // optional; bookings without it carry no coords
	Pricing  *pricing.Engine  // optional; bookings without it carry no fare
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

// Create books a ride in requested state. Pickup/dropoff geocoding is
// best-effort: a failed resolution leaves the coordinates nil and the
// estimates zero rather than substituting a default distance.
func (s *Service) Create(ctx context.Context, req BookingRequest, now time.Time) (*models.Ride, error) {
	if strings.TrimSpace(req.RiderName) == "" {
		return nil, &errs.ValidationError{Field: "rider_name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Pickup) == "" {
		return nil, &errs.ValidationError{Field: "pickup", Reason: "must not be empty"}
	}
	if strings.TrimSpace(req.Dropoff) == "" {
		return nil, &errs.ValidationError{Field: "dropoff", Reason: "must not be empty"}
	}

	r := &models.Ride{
		ID:          uuid.NewString(),
		RiderName:   strings.TrimSpace(req.RiderName),
		RiderPhone:  strings.TrimSpace(req.RiderPhone),
		Pickup:      strings.TrimSpace(req.Pickup),
		Dropoff:     strings.TrimSpace(req.Dropoff),
		ServiceType: strings.TrimSpace(req.ServiceType),
		Status:      models.StatusRequested,
		CreatedAt:   now.UTC(),
	}

	if s.Geocoder != nil {
		pickup, perr := s.Geocoder.Resolve(ctx, r.Pickup)
		dropoff, derr := s.Geocoder.Resolve(ctx, r.Dropoff)
		if perr == nil {
			r.PickupLat, r.PickupLng = &pickup.Lat, &pickup.Lng
		} else {
			s.log().Warn("pickup geocoding failed", "ride_id", r.ID, "error", perr)
		}
		if derr == nil {
			r.DropoffLat, r.DropoffLng = &dropoff.Lat, &dropoff.Lng
		} else {
			s.log().Warn("dropoff geocoding failed", "ride_id", r.ID, "error", derr)
		}
		if perr == nil && derr == nil {
			r.EstimatedDistanceMiles = geo.HaversineMiles(pickup.Lat, pickup.Lng, dropoff.Lat, dropoff.Lng)
			r.EstimatedDurationMin = r.EstimatedDistanceMiles / s.speed() * 60
			if s.Pricing != nil {
				fare := s.Pricing.Estimate(r.EstimatedDistanceMiles, r.EstimatedDurationMin, 1.0)
				r.EstimatedFareUSD = fare.TotalEstimated
			}
		}
	}

	if err := s.Store.CreateRide(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	s.log().Info("ride booked", "ride_id", r.ID, "pickup", r.Pickup, "dropoff", r.Dropoff)
	return r, nil
}

// UpdateStatus applies a driver-initiated transition to target. callerDriverID
// scopes the update to the assigned driver; pass "" for operator calls
// (e.g. cancelling a still-requested ride).
//
// requested->assigned is not reachable here: assignment goes through the
// matcher so the compare-and-swap and eligibility checks cannot be skipped.
func (s *Service) UpdateStatus(ctx context.Context, rideID, callerDriverID string, target models.RideStatus, now time.Time) (*models.Ride, error) {
	if !IsValidStatus(target) {
		return nil, &errs.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", target)}
	}
	if target == models.StatusRequested || target == models.StatusAssigned {
		return nil, &errs.ValidationError{Field: "status", Reason: fmt.Sprintf("%s is not reachable through status updates", target)}
	}

	r, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	if callerDriverID != "" {
		if r.AssignedDriverID == nil || *r.AssignedDriverID != callerDriverID {
			return nil, &errs.InvalidStateError{RideID: rideID, Status: string(r.Status), Reason: "ride is not assigned to this driver"}
		}
	}
	if !CanTransition(r.Status, target) {
		return nil, &errs.InvalidTransitionError{RideID: rideID, From: string(r.Status), To: string(target)}
	}

	ok, err := s.Store.UpdateStatus(ctx, rideID, r.Status, target, now)
	if err != nil {
		return nil, fmt.Errorf("update ride %s status: %w", rideID, err)
	}
	if !ok {
		// someone else moved the ride between our read and the swap
		return nil, &errs.InvalidTransitionError{RideID: rideID, From: string(r.Status), To: string(target)}
	}

	updated, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	s.log().Info("ride status updated", "ride_id", rideID, "from", r.Status, "to", target)
	return updated, nil
}
