package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

// PostgresStore implements DriverStore, RideStore and the presence Store
// on a shared database, which is what makes the conditional updates hold
// across processes: the WHERE clause plus RowsAffected is the
// compare-and-swap.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CreateDriver(ctx context.Context, d *models.Driver) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO drivers(id, name, phone, vehicle, is_active, created_at_utc)
		 VALUES($1,$2,$3,$4,$5,$6)`,
		d.ID, d.Name, d.Phone, d.Vehicle, d.Active, d.CreatedAt)
	return err
}

func (p *PostgresStore) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone, vehicle, is_active, created_at_utc FROM drivers WHERE id=$1`, id)
	var d models.Driver
	err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.Vehicle, &d.Active, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) ListDrivers(ctx context.Context, activeOnly bool) ([]models.Driver, error) {
	q := `SELECT id, name, phone, vehicle, is_active, created_at_utc FROM drivers`
	if activeOnly {
		q += ` WHERE is_active = true`
	}
	q += ` ORDER BY created_at_utc DESC LIMIT 500`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Driver
	for rows.Next() {
		var d models.Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Phone, &d.Vehicle, &d.Active, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SetDriverActive(ctx context.Context, id string, active bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE drivers SET is_active=$1 WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rides(
			id, rider_name, rider_phone, pickup, dropoff, service_type,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			estimated_distance_miles, estimated_duration_min, estimated_fare_usd,
			status, created_at_utc
		 ) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.RiderName, r.RiderPhone, r.Pickup, r.Dropoff, r.ServiceType,
		r.PickupLat, r.PickupLng, r.DropoffLat, r.DropoffLng,
		r.EstimatedDistanceMiles, r.EstimatedDurationMin, r.EstimatedFareUSD,
		string(r.Status), r.CreatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, rideSelect+` WHERE id=$1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p *PostgresStore) AssignDriver(ctx context.Context, rideID, driverID string, at time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides
		 SET status='assigned', assigned_driver_id=$2, assigned_at_utc=$3
		 WHERE id=$1 AND status='requested'`,
		rideID, driverID, at.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// statusTimestampColumn fixes which rides column each transition stamps.
// Column names come from this map only, never from caller input.
var statusTimestampColumn = map[models.RideStatus]string{
	models.StatusEnroute:    "enroute_at_utc",
	models.StatusArrived:    "arrived_at_utc",
	models.StatusInProgress: "in_progress_at_utc",
	models.StatusCompleted:  "completed_at_utc",
	models.StatusCancelled:  "cancelled_at_utc",
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, rideID string, from, to models.RideStatus, at time.Time) (bool, error) {
	col, ok := statusTimestampColumn[to]
	if !ok {
		return false, fmt.Errorf("no timestamp column for status %s", to)
	}
	q := fmt.Sprintf(
		`UPDATE rides SET status=$1, %[1]s=COALESCE(%[1]s, $2) WHERE id=$3 AND status=$4`, col)
	res, err := p.db.ExecContext(ctx, q, string(to), at.UTC(), rideID, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) ListRidesByStatus(ctx context.Context, status models.RideStatus, limit int) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx,
		rideSelect+` WHERE status=$1 ORDER BY created_at_utc DESC LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRides(rows)
}

func (p *PostgresStore) ListActiveRides(ctx context.Context, limit int) ([]models.Ride, error) {
	rows, err := p.db.QueryContext(ctx,
		rideSelect+` WHERE status IN ('assigned','enroute','arrived','in_progress')
		 ORDER BY created_at_utc DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRides(rows)
}

// Get and PutIfNewer make PostgresStore a presence store backed by the
// driver_locations table; the timestamp guard in the upsert is the same
// non-regression rule the memory store applies under its lock.

func (p *PostgresStore) Get(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT driver_id, lat, lng, heading_deg, speed_mph, accuracy_m, updated_at_utc
		 FROM driver_locations WHERE driver_id=$1`, driverID)
	var loc models.DriverLocation
	var heading, speed, accuracy sql.NullFloat64
	err := row.Scan(&loc.DriverID, &loc.Lat, &loc.Lng, &heading, &speed, &accuracy, &loc.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	loc.HeadingDeg = nullPtr(heading)
	loc.SpeedMPH = nullPtr(speed)
	loc.AccuracyM = nullPtr(accuracy)
	return &loc, nil
}

func (p *PostgresStore) PutIfNewer(ctx context.Context, loc models.DriverLocation) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO driver_locations(driver_id, lat, lng, heading_deg, speed_mph, accuracy_m, updated_at_utc)
		 VALUES($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (driver_id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			heading_deg = EXCLUDED.heading_deg,
			speed_mph = EXCLUDED.speed_mph,
			accuracy_m = EXCLUDED.accuracy_m,
			updated_at_utc = EXCLUDED.updated_at_utc
		 WHERE driver_locations.updated_at_utc <= EXCLUDED.updated_at_utc`,
		loc.DriverID, loc.Lat, loc.Lng, loc.HeadingDeg, loc.SpeedMPH, loc.AccuracyM, loc.LastSeen.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const rideSelect = `SELECT
	id, rider_name, rider_phone, pickup, dropoff, service_type,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	estimated_distance_miles, estimated_duration_min, estimated_fare_usd,
	status, assigned_driver_id,
	created_at_utc, assigned_at_utc, enroute_at_utc, arrived_at_utc,
	in_progress_at_utc, completed_at_utc, cancelled_at_utc
 FROM rides`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var pickupLat, pickupLng, dropoffLat, dropoffLng sql.NullFloat64
	var driverID sql.NullString
	var assigned, enroute, arrived, inProgress, completed, cancelled sql.NullTime
	var status string
	err := row.Scan(
		&r.ID, &r.RiderName, &r.RiderPhone, &r.Pickup, &r.Dropoff, &r.ServiceType,
		&pickupLat, &pickupLng, &dropoffLat, &dropoffLng,
		&r.EstimatedDistanceMiles, &r.EstimatedDurationMin, &r.EstimatedFareUSD,
		&status, &driverID,
		&r.CreatedAt, &assigned, &enroute, &arrived, &inProgress, &completed, &cancelled)
	if err != nil {
		return nil, err
	}
	r.Status = models.RideStatus(status)
	r.PickupLat = nullPtr(pickupLat)
	r.PickupLng = nullPtr(pickupLng)
	r.DropoffLat = nullPtr(dropoffLat)
	r.DropoffLng = nullPtr(dropoffLng)
	if driverID.Valid {
		r.AssignedDriverID = &driverID.String
	}
	r.AssignedAt = timePtr(assigned)
	r.EnrouteAt = timePtr(enroute)
	r.ArrivedAt = timePtr(arrived)
	r.InProgressAt = timePtr(inProgress)
	r.CompletedAt = timePtr(completed)
	r.CancelledAt = timePtr(cancelled)
	return &r, nil
}

func collectRides(rows *sql.Rows) ([]models.Ride, error) {
	var out []models.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func nullPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
