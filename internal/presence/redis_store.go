package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisStore keeps last-known locations in Redis: a GEOADD entry per
// driver for geo queries plus a metadata hash carrying the full fix.
//
// The newer-timestamp check is read-then-write, not a Lua script. The
// Kafka pipeline keys messages by driver id, so writes for one driver are
// applied by a single consumer in order; callers bypassing the pipeline
// must accept that window.
type RedisStore struct {
	client *redis.Client
	geoKey string
}

func NewRedisStore(client *redis.Client, geoKey string) *RedisStore {
	if geoKey == "" {
		geoKey = "drivers_geo"
	}
	return &RedisStore{client: client, geoKey: geoKey}
}

func locKey(driverID string) string { return "driver:loc:" + driverID }

func (r *RedisStore) Get(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	m, err := r.client.HGetAll(ctx, locKey(driverID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", locKey(driverID), err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	loc := models.DriverLocation{DriverID: driverID}
	if loc.Lat, err = strconv.ParseFloat(m["lat"], 64); err != nil {
		return nil, fmt.Errorf("redis location for %s: bad lat %q", driverID, m["lat"])
	}
	if loc.Lng, err = strconv.ParseFloat(m["lng"], 64); err != nil {
		return nil, fmt.Errorf("redis location for %s: bad lng %q", driverID, m["lng"])
	}
	if loc.LastSeen, err = time.Parse(time.RFC3339Nano, m["last_seen"]); err != nil {
		return nil, fmt.Errorf("redis location for %s: bad last_seen %q", driverID, m["last_seen"])
	}
	loc.HeadingDeg = parseOptFloat(m["heading_deg"])
	loc.SpeedMPH = parseOptFloat(m["speed_mph"])
	loc.AccuracyM = parseOptFloat(m["accuracy_m"])
	return &loc, nil
}

func (r *RedisStore) PutIfNewer(ctx context.Context, loc models.DriverLocation) (bool, error) {
	cur, err := r.client.HGet(ctx, locKey(loc.DriverID), "last_seen").Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis hget last_seen: %w", err)
	}
	if err == nil {
		stored, perr := time.Parse(time.RFC3339Nano, cur)
		if perr == nil && stored.After(loc.LastSeen) {
			return false, nil
		}
	}

	if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Name:      loc.DriverID,
		Longitude: loc.Lng,
		Latitude:  loc.Lat,
	}).Result(); err != nil {
		return false, fmt.Errorf("redis geoadd: %w", err)
	}

	fields := map[string]interface{}{
		"lat":       strconv.FormatFloat(loc.Lat, 'f', -1, 64),
		"lng":       strconv.FormatFloat(loc.Lng, 'f', -1, 64),
		"last_seen": loc.LastSeen.UTC().Format(time.RFC3339Nano),
	}
	if loc.HeadingDeg != nil {
		fields["heading_deg"] = strconv.FormatFloat(*loc.HeadingDeg, 'f', -1, 64)
	}
	if loc.SpeedMPH != nil {
		fields["speed_mph"] = strconv.FormatFloat(*loc.SpeedMPH, 'f', -1, 64)
	}
	if loc.AccuracyM != nil {
		fields["accuracy_m"] = strconv.FormatFloat(*loc.AccuracyM, 'f', -1, 64)
	}
	if err := r.client.HSet(ctx, locKey(loc.DriverID), fields).Err(); err != nil {
		return false, fmt.Errorf("redis hset: %w", err)
	}
	return true, nil
}

func parseOptFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
