package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/rides"
	"github.com/example/ride-dispatch/internal/storage"
)

type stubGeocoder struct {
	coords map[string]models.Coord
}

func (g stubGeocoder) Resolve(_ context.Context, address string) (models.Coord, error) {
	c, ok := g.coords[address]
	if !ok {
		return models.Coord{}, fmt.Errorf("no result for %q", address)
	}
	return c, nil
}

func newTestServer(t *testing.T, adminKey string) *Server {
	t.Helper()

	store := storage.NewMemoryStore()
	tracker := presence.NewTracker(presence.NewMemoryStore(), 5*time.Minute, 15*time.Minute)
	gc := stubGeocoder{coords: map[string]models.Coord{
		"100 Main St": {Lat: 40.7128, Lng: -74.0060},
		"200 Oak Ave": {Lat: 40.7580, Lng: -73.9855},
	}}

	cfg := config.ServerConfig{AdminAPIKey: adminKey, DefaultStaleness: 5 * time.Minute}
	return NewServer(cfg, Deps{
		Rides:     &rides.Service{Store: store, Geocoder: gc, Pricing: pricing.NewEngine()},
		Matcher:   &matcher.Service{Rides: store, Drivers: store, Presence: tracker, Geocoder: gc},
		Tracker:   tracker,
		Drivers:   store,
		RideStore: store,
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestBookAndAutoAssignFlow(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/drivers", map[string]string{"name": "Dana", "vehicle": "sedan"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create driver: status %d body %s", rec.Code, rec.Body.String())
	}
	driver := decodeBody[models.Driver](t, rec)

	// Driver reports a fix near the pickup.
	ping := map[string]any{"lat": 40.7130, "lng": -74.0060, "timestamp_utc": time.Now().UTC().Format(time.RFC3339Nano)}
	rec = doJSON(t, srv, http.MethodPut, "/api/v1/driver/"+driver.ID+"/location", ping, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("location ping: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/rides", map[string]string{
		"rider_name": "Ann", "pickup": "100 Main St", "dropoff": "200 Oak Ave",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book ride: status %d body %s", rec.Code, rec.Body.String())
	}
	ride := decodeBody[models.Ride](t, rec)
	if ride.Status != models.StatusRequested {
		t.Fatalf("new ride status = %q, want requested", ride.Status)
	}
	if ride.EstimatedFareUSD <= 0 {
		t.Fatal("expected a fare estimate on a fully geocoded booking")
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/rides/"+ride.ID+"/auto-assign", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("auto-assign: status %d body %s", rec.Code, rec.Body.String())
	}
	match := decodeBody[models.MatchResult](t, rec)
	if match.DriverID != driver.ID {
		t.Fatalf("matched driver %q, want %q", match.DriverID, driver.ID)
	}

	// Second auto-assign must conflict: the ride already left requested.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/rides/"+ride.ID+"/auto-assign", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat auto-assign: status %d, want 409", rec.Code)
	}

	// Drive the ride through its lifecycle.
	for _, status := range []string{"enroute", "arrived", "in_progress", "completed"} {
		rec = doJSON(t, srv, http.MethodPost, "/api/v1/driver/rides/"+ride.ID+"/status",
			map[string]string{"driver_id": driver.ID, "status": status}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %s: code %d body %s", status, rec.Code, rec.Body.String())
		}
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/rides/"+ride.ID, nil, nil)
	final := decodeBody[models.Ride](t, rec)
	if final.Status != models.StatusCompleted {
		t.Fatalf("final status = %q, want completed", final.Status)
	}
	if final.CompletedAt == nil {
		t.Fatal("completed_at_utc not set")
	}
}

func TestAutoAssignNoDrivers(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/rides", map[string]string{
		"rider_name": "Ann", "pickup": "100 Main St", "dropoff": "200 Oak Ave",
	}, nil)
	ride := decodeBody[models.Ride](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/rides/"+ride.ID+"/auto-assign", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("auto-assign with no drivers: status %d, want 503", rec.Code)
	}
}

func TestOutOfOrderPingConflicts(t *testing.T) {
	srv := newTestServer(t, "")
	now := time.Now().UTC()

	first := map[string]any{"lat": 1.0, "lng": 2.0, "timestamp_utc": now.Format(time.RFC3339Nano)}
	if rec := doJSON(t, srv, http.MethodPut, "/api/v1/driver/d1/location", first, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("first ping: status %d", rec.Code)
	}
	late := map[string]any{"lat": 9.0, "lng": 9.0, "timestamp_utc": now.Add(-time.Minute).Format(time.RFC3339Nano)}
	if rec := doJSON(t, srv, http.MethodPut, "/api/v1/driver/d1/location", late, nil); rec.Code != http.StatusConflict {
		t.Fatalf("late ping: status %d, want 409", rec.Code)
	}
}

func TestPingValidation(t *testing.T) {
	srv := newTestServer(t, "")
	bad := map[string]any{"lat": 123.0, "lng": 0.0, "timestamp_utc": time.Now().UTC().Format(time.RFC3339Nano)}
	if rec := doJSON(t, srv, http.MethodPut, "/api/v1/driver/d1/location", bad, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad latitude: status %d, want 400", rec.Code)
	}
}

func TestManualAssignInactiveDriver(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/drivers", map[string]string{"name": "Dana"}, nil)
	driver := decodeBody[models.Driver](t, rec)
	doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/drivers/"+driver.ID+"/active", map[string]bool{"is_active": false}, nil)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/rides", map[string]string{
		"rider_name": "Ann", "pickup": "100 Main St", "dropoff": "200 Oak Ave",
	}, nil)
	ride := decodeBody[models.Ride](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/rides/"+ride.ID+"/assign",
		map[string]string{"driver_id": driver.ID}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("assign inactive driver: status %d, want 403", rec.Code)
	}
}

func TestAdminKeyGate(t *testing.T) {
	srv := newTestServer(t, "sekret")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/dispatch/active-rides", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status %d, want 401", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/dispatch/active-rides", nil, map[string]string{"X-API-Key": "sekret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: status %d, want 200", rec.Code)
	}
	// Rider-facing booking stays open.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/rides", map[string]string{
		"rider_name": "Ann", "pickup": "100 Main St", "dropoff": "200 Oak Ave",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking with admin key set: status %d, want 201", rec.Code)
	}
}

func TestOperatorCancelRequestedRide(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/rides", map[string]string{
		"rider_name": "Ann", "pickup": "100 Main St", "dropoff": "200 Oak Ave",
	}, nil)
	ride := decodeBody[models.Ride](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/rides/"+ride.ID+"/cancel", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body %s", rec.Code, rec.Body.String())
	}
	cancelled := decodeBody[models.Ride](t, rec)
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", cancelled.Status)
	}

	// Terminal rides stay terminal.
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/rides/"+ride.ID+"/cancel", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel terminal ride: status %d, want 409", rec.Code)
	}
}

func TestDriverStatusUpdateRequiresDriverID(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/rides", map[string]string{
		"rider_name": "Ann", "pickup": "100 Main St", "dropoff": "200 Oak Ave",
	}, nil)
	ride := decodeBody[models.Ride](t, rec)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/driver/rides/"+ride.ID+"/status",
		map[string]string{"status": "cancelled"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing driver_id: status %d, want 400", rec.Code)
	}
}

func TestUnknownRideIs404(t *testing.T) {
	srv := newTestServer(t, "")
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/rides/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown ride: status %d, want 404", rec.Code)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/dispatch/drivers", map[string]string{"name": "Dana"}, nil)
	driver := decodeBody[models.Driver](t, rec)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/dispatch/drivers/"+driver.ID+"/presence", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("presence: status %d", rec.Code)
	}
	p := decodeBody[models.Presence](t, rec)
	if p.Status != models.PresenceOffline {
		t.Fatalf("presence for silent driver = %q, want offline", p.Status)
	}

	ping := map[string]any{"lat": 40.0, "lng": -74.0, "timestamp_utc": time.Now().UTC().Format(time.RFC3339Nano)}
	doJSON(t, srv, http.MethodPut, "/api/v1/driver/"+driver.ID+"/location", ping, nil)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/dispatch/drivers/"+driver.ID+"/presence", nil, nil)
	p = decodeBody[models.Presence](t, rec)
	if p.Status != models.PresenceOnline {
		t.Fatalf("presence after ping = %q, want online", p.Status)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/dispatch/available-drivers?minutes_recent=5", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("available drivers: status %d", rec.Code)
	}
	avail := decodeBody[[]map[string]any](t, rec)
	if len(avail) != 1 {
		t.Fatalf("available drivers = %d, want 1", len(avail))
	}
}
