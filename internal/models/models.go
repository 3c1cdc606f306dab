package models

import "time"

// Coord is a WGS84 point.
type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Driver is the administrative driver record. Presence (last-known
// location) is tracked separately and keyed by the same driver_id.
type Driver struct {
	ID        string    `json:"driver_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Vehicle   string    `json:"vehicle"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at_utc"`
}

// LocationPing is a single position report from a driver client.
// Heading, speed and accuracy are optional.
type LocationPing struct {
	DriverID   string    `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	HeadingDeg *float64  `json:"heading_deg,omitempty"`
	SpeedMPH   *float64  `json:"speed_mph,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	Timestamp  time.Time `json:"timestamp_utc"`
}

// DriverLocation is the last-known position of a driver. Pings always
// overwrite; no history is retained.
type DriverLocation struct {
	DriverID   string    `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	HeadingDeg *float64  `json:"heading_deg,omitempty"`
	SpeedMPH   *float64  `json:"speed_mph,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	LastSeen   time.Time `json:"last_seen_utc"`
}

// PresenceStatus classifies how recently a driver has reported.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceStale   PresenceStatus = "stale"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the derived presence view of one driver at a caller-supplied
// instant. AgeSeconds and the coordinates are meaningful only when HasFix
// is set.
type Presence struct {
	DriverID   string         `json:"driver_id"`
	Status     PresenceStatus `json:"status"`
	AgeSeconds float64        `json:"age_seconds"`
	Lat        float64        `json:"lat"`
	Lng        float64        `json:"lng"`
	HasFix     bool           `json:"has_fix"`
}

// RideStatus is the ride lifecycle state.
type RideStatus string

const (
	StatusRequested  RideStatus = "requested"
	StatusAssigned   RideStatus = "assigned"
	StatusEnroute    RideStatus = "enroute"
	StatusArrived    RideStatus = "arrived"
	StatusInProgress RideStatus = "in_progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// Ride is a booking. Pickup and dropoff are free-text addresses; the
// coordinate fields hold the externally geocoded result and stay nil when
// resolution failed.
type Ride struct {
	ID          string   `json:"ride_id"`
	RiderName   string   `json:"rider_name"`
	RiderPhone  string   `json:"rider_phone"`
	Pickup      string   `json:"pickup"`
	Dropoff     string   `json:"dropoff"`
	ServiceType string   `json:"service_type"`
	PickupLat   *float64 `json:"pickup_lat,omitempty"`
	PickupLng   *float64 `json:"pickup_lng,omitempty"`
	DropoffLat  *float64 `json:"dropoff_lat,omitempty"`
	DropoffLng  *float64 `json:"dropoff_lng,omitempty"`

	EstimatedDistanceMiles float64 `json:"estimated_distance_miles"`
	EstimatedDurationMin   float64 `json:"estimated_duration_min"`
	EstimatedFareUSD       float64 `json:"estimated_fare_usd"`

	Status           RideStatus `json:"status"`
	AssignedDriverID *string    `json:"assigned_driver_id,omitempty"`

	CreatedAt    time.Time  `json:"created_at_utc"`
	AssignedAt   *time.Time `json:"assigned_at_utc,omitempty"`
	EnrouteAt    *time.Time `json:"enroute_at_utc,omitempty"`
	ArrivedAt    *time.Time `json:"arrived_at_utc,omitempty"`
	InProgressAt *time.Time `json:"in_progress_at_utc,omitempty"`
	CompletedAt  *time.Time `json:"completed_at_utc,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at_utc,omitempty"`
}

// Terminal reports whether the ride can no longer change state.
func (r *Ride) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled
}

// MatchResult is what auto-assign returns to the caller on top of the
// state transition: the winning driver plus the score it won with.
type MatchResult struct {
	RideID        string  `json:"ride_id"`
	DriverID      string  `json:"driver_id"`
	DistanceMiles float64 `json:"distance_miles"`
	ETAMinutes    int     `json:"eta_minutes"`
}

// AssignmentNotice is pushed to the assigned driver over whatever
// transport is wired (websocket session, webhook).
type AssignmentNotice struct {
	RideID        string  `json:"ride_id"`
	DriverID      string  `json:"driver_id"`
	Pickup        string  `json:"pickup"`
	Dropoff       string  `json:"dropoff"`
	DistanceMiles float64 `json:"distance_miles,omitempty"`
	ETAMinutes    int     `json:"eta_minutes,omitempty"`
}

// Fare is an estimated fare breakdown.
type Fare struct {
	BaseFare        float64 `json:"base_fare"`
	DistanceFare    float64 `json:"distance_fare"`
	TimeFare        float64 `json:"time_fare"`
	BookingFee      float64 `json:"booking_fee"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	Subtotal        float64 `json:"subtotal"`
	TotalEstimated  float64 `json:"total_estimated"`
}
