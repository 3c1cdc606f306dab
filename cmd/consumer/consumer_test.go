package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/errs"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
)

// fakeRecorder implements pingRecorder for tests.
type fakeRecorder struct {
	fail  int // number of calls to fail before succeeding
	final error
	calls int
}

func (f *fakeRecorder) RecordPing(ctx context.Context, p models.LocationPing) error {
	f.calls++
	if f.final != nil {
		return f.final
	}
	if f.calls <= f.fail {
		return errors.New("store unavailable")
	}
	return nil
}

func ping() models.LocationPing {
	return models.LocationPing{DriverID: "d1", Lat: 1, Lng: 2, Timestamp: time.Now().UTC()}
}

func TestRecordWithRetrySucceedsAfterRetries(t *testing.T) {
	f := &fakeRecorder{fail: 2}
	start := time.Now()
	if err := recordWithRetry(context.Background(), f, ping(), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("calls = %d, want 3", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("expected at least one backoff")
	}
}

func TestRecordWithRetryFailsWhenExhausted(t *testing.T) {
	f := &fakeRecorder{fail: 5}
	if err := recordWithRetry(context.Background(), f, ping(), 3, 5*time.Millisecond); err == nil {
		t.Fatal("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("calls = %d, want 3", f.calls)
	}
}

func TestRecordWithRetryDropsOutOfOrderImmediately(t *testing.T) {
	f := &fakeRecorder{final: presence.ErrOutOfOrderPing}
	err := recordWithRetry(context.Background(), f, ping(), 3, 5*time.Millisecond)
	if !errors.Is(err, presence.ErrOutOfOrderPing) {
		t.Fatalf("err = %v, want ErrOutOfOrderPing", err)
	}
	if f.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retries on out-of-order)", f.calls)
	}
}

func TestRecordWithRetryDoesNotRetryValidation(t *testing.T) {
	f := &fakeRecorder{final: &errs.ValidationError{Field: "lat", Reason: "out of range"}}
	err := recordWithRetry(context.Background(), f, ping(), 3, 5*time.Millisecond)
	if !isValidationErr(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if f.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retries on validation)", f.calls)
	}
}
