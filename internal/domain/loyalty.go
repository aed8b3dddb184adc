package domain

import (
	"math"
	"strings"
)

type Tier string

const (
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

const (
	goldSpendThreshold     = 5000
	platinumSpendThreshold = 20000
	pointsPerCurrencyUnit  = 0.1
)

// ParseTier reads a stored tier; unknown or empty values are SILVER.
func ParseTier(raw string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(raw))) {
	case TierGold:
		return TierGold
	case TierPlatinum:
		return TierPlatinum
	default:
		return TierSilver
	}
}

// TierForSpend maps cumulative spend onto a tier.
func TierForSpend(spend float64) Tier {
	switch {
	case spend >= platinumSpendThreshold:
		return TierPlatinum
	case spend >= goldSpendThreshold:
		return TierGold
	default:
		return TierSilver
	}
}

// Multiplier is the points earn rate of the tier.
func (t Tier) Multiplier() float64 {
	switch t {
	case TierPlatinum:
		return 1.5
	case TierGold:
		return 1.2
	default:
		return 1.0
	}
}

// PointsFor is the whole number of points earned on an order total at the current tier.
func PointsFor(total float64, current Tier) int64 {
	points := math.Floor(total * pointsPerCurrencyUnit * current.Multiplier())
	if points <= 0 || math.IsNaN(points) {
		return 0
	}
	return int64(points)
}
