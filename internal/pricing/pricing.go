// Package pricing estimates ride fares from distance and duration.
package pricing

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// Engine holds the fare parameters. Zero values are valid (a free tier);
// use NewEngine for the standard defaults.
type Engine struct {
	BaseFareUSD    float64
	PerMileUSD     float64
	PerMinuteUSD   float64
	MinimumFareUSD float64
	BookingFeeUSD  float64
}

// NewEngine returns an engine with the default rate card.
func NewEngine() *Engine {
	return &Engine{
		BaseFareUSD:    3.00,
		PerMileUSD:     2.80,
		PerMinuteUSD:   0.40,
		MinimumFareUSD: 5.00,
		BookingFeeUSD:  0.00,
	}
}

// Estimate computes the fare breakdown. A surge multiplier below 1 is
// treated as 1. The minimum-fare floor applies after surge.
func (e *Engine) Estimate(distanceMiles, durationMinutes, surge float64) models.Fare {
	if surge < 1 {
		surge = 1
	}
	distanceFare := round2(distanceMiles * e.PerMileUSD)
	timeFare := round2(durationMinutes * e.PerMinuteUSD)
	subtotal := round2(e.BaseFareUSD + distanceFare + timeFare + e.BookingFeeUSD)
	total := round2(subtotal * surge)
	if total < e.MinimumFareUSD {
		total = e.MinimumFareUSD
	}
	return models.Fare{
		BaseFare:        e.BaseFareUSD,
		DistanceFare:    distanceFare,
		TimeFare:        timeFare,
		BookingFee:      e.BookingFeeUSD,
		SurgeMultiplier: surge,
		Subtotal:        subtotal,
		TotalEstimated:  total,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
