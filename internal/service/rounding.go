package service

import "math"

// Precision used throughout the ledger: areas carry 2 decimal places,
// material quantities carry 3.
const (
	areaEpsilon = 0.005
)

func roundArea(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundQuantity(v float64) float64 {
	return math.Round(v*1000) / 1000
}
