package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/errs"
	"github.com/example/ride-dispatch/internal/models"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ping(driverID string, lat, lng float64, ts time.Time) models.LocationPing {
	return models.LocationPing{DriverID: driverID, Lat: lat, Lng: lng, Timestamp: ts}
}

func TestRecordPingRejectsBadCoordinates(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	var ve *errs.ValidationError
	if err := tr.RecordPing(ctx, ping("d1", 91, 0, base)); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for lat=91, got %v", err)
	}
	if err := tr.RecordPing(ctx, ping("d1", 0, -181, base)); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for lng=-181, got %v", err)
	}
	if err := tr.RecordPing(ctx, models.LocationPing{DriverID: "d1", Lat: 1, Lng: 1}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for zero timestamp, got %v", err)
	}
}

func TestRecordPingDropsOutOfOrder(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	if err := tr.RecordPing(ctx, ping("d1", 40.0, -74.0, base)); err != nil {
		t.Fatalf("first ping: %v", err)
	}
	err := tr.RecordPing(ctx, ping("d1", 41.0, -75.0, base.Add(-time.Minute)))
	if !errors.Is(err, ErrOutOfOrderPing) {
		t.Fatalf("expected ErrOutOfOrderPing, got %v", err)
	}
	// the stale ping must not have moved the driver
	p, err := tr.Presence(ctx, "d1", base)
	if err != nil {
		t.Fatal(err)
	}
	if p.Lat != 40.0 || p.Lng != -74.0 {
		t.Fatalf("late ping applied: %+v", p)
	}
}

func TestRecordPingEqualTimestampOverwrites(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0, 0)
	ctx := context.Background()
	if err := tr.RecordPing(ctx, ping("d1", 40.0, -74.0, base)); err != nil {
		t.Fatal(err)
	}
	if err := tr.RecordPing(ctx, ping("d1", 40.5, -74.5, base)); err != nil {
		t.Fatalf("equal-timestamp ping rejected: %v", err)
	}
}

func TestPresenceNeverReported(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0, 0)
	p, err := tr.Presence(context.Background(), "ghost", base)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.PresenceOffline || p.HasFix {
		t.Fatalf("expected offline/no-fix, got %+v", p)
	}
}

func TestPresenceBoundaries(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 5*time.Minute, 15*time.Minute)
	ctx := context.Background()
	if err := tr.RecordPing(ctx, ping("d1", 40.0, -74.0, base)); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		age  time.Duration
		want models.PresenceStatus
	}{
		{0, models.PresenceOnline},
		{300 * time.Second, models.PresenceOnline}, // boundary is inclusive
		{301 * time.Second, models.PresenceStale},
		{900 * time.Second, models.PresenceStale}, // boundary is inclusive
		{901 * time.Second, models.PresenceOffline},
	}
	for _, c := range cases {
		p, err := tr.Presence(ctx, "d1", base.Add(c.age))
		if err != nil {
			t.Fatal(err)
		}
		if p.Status != c.want {
			t.Fatalf("age %s: got %s, want %s", c.age, p.Status, c.want)
		}
		if p.AgeSeconds != c.age.Seconds() {
			t.Fatalf("age %s: got AgeSeconds %f", c.age, p.AgeSeconds)
		}
	}
}

func TestListAvailableStalenessWindow(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	// active 20 minutes ago
	if err := tr.RecordPing(ctx, ping("d1", 40.0, -74.0, base.Add(-20*time.Minute))); err != nil {
		t.Fatal(err)
	}
	drivers := []models.Driver{{ID: "d1", Active: true}}

	got, err := tr.ListAvailable(ctx, drivers, base, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected exclusion with 5m window, got %d", len(got))
	}

	got, err = tr.ListAvailable(ctx, drivers, base, 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Driver.ID != "d1" {
		t.Fatalf("expected inclusion with 30m window, got %+v", got)
	}
}

func TestListAvailableSkipsInactiveAndUnreported(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0, 0)
	ctx := context.Background()

	if err := tr.RecordPing(ctx, ping("inactive", 40.0, -74.0, base)); err != nil {
		t.Fatal(err)
	}
	drivers := []models.Driver{
		{ID: "inactive", Active: false},
		{ID: "no-fix", Active: true},
	}
	got, err := tr.ListAvailable(ctx, drivers, base, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %+v", got)
	}
}
