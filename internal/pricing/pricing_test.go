package pricing

import "testing"

func TestEstimateBreakdown(t *testing.T) {
	e := NewEngine()
	f := e.Estimate(5.0, 12.0, 1.0)
	if f.DistanceFare != 14.00 {
		t.Fatalf("distance fare = %f", f.DistanceFare)
	}
	if f.TimeFare != 4.80 {
		t.Fatalf("time fare = %f", f.TimeFare)
	}
	if f.Subtotal != 21.80 {
		t.Fatalf("subtotal = %f", f.Subtotal)
	}
	if f.TotalEstimated != 21.80 {
		t.Fatalf("total = %f", f.TotalEstimated)
	}
}

func TestEstimateMinimumFareFloor(t *testing.T) {
	e := NewEngine()
	f := e.Estimate(0.1, 1.0, 1.0)
	if f.TotalEstimated != e.MinimumFareUSD {
		t.Fatalf("total = %f, want minimum %f", f.TotalEstimated, e.MinimumFareUSD)
	}
}

func TestEstimateSurge(t *testing.T) {
	e := NewEngine()
	base := e.Estimate(5.0, 12.0, 1.0)
	surged := e.Estimate(5.0, 12.0, 2.0)
	if surged.TotalEstimated != round2(base.Subtotal*2) {
		t.Fatalf("surged total = %f", surged.TotalEstimated)
	}
	// sub-1 multipliers never discount
	floor := e.Estimate(5.0, 12.0, 0.5)
	if floor.SurgeMultiplier != 1 || floor.TotalEstimated != base.TotalEstimated {
		t.Fatalf("sub-1 surge applied: %+v", floor)
	}
}
