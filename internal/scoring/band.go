// Package scoring converts raw scores to IELTS bands and summarizes result
// history.
package scoring

import "math"

// readingBands maps a minimum raw score to its band, highest first.
var readingBands = []struct {
	min  int
	band float64
}{
	{39, 9.0},
	{37, 8.5},
	{35, 8.0},
	{33, 7.5},
	{30, 7.0},
	{27, 6.5},
	{23, 6.0},
	{19, 5.5},
	{15, 5.0},
	{13, 4.5},
	{10, 4.0},
}

// floorBand is returned for any raw score below the lowest threshold.
const floorBand = 3.5

// ReadingBand converts a raw Reading score (correct answers out of 40) to a
// band. Negative input is treated as 0.
func ReadingBand(raw int) float64 {
	for _, b := range readingBands {
		if raw >= b.min {
			return b.band
		}
	}
	return floorBand
}

// IsBand reports whether score is a valid band: within [0, 9] on a half-point
// step.
func IsBand(score float64) bool {
	if math.IsNaN(score) || score < 0 || score > 9 {
		return false
	}
	return score*2 == math.Trunc(score*2)
}
