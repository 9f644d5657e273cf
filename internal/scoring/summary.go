package scoring

import (
	"math"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// TrendSize is how many graded results the history trend keeps.
const TrendSize = 10

// TrendPoint is one point of the score history chart.
type TrendPoint struct {
	Date   string           `json:"date"`
	Module model.TestModule `json:"module"`
	Score  float64          `json:"score"`
}

// Summary is the dashboard view of a user's results.
type Summary struct {
	Latest  map[model.TestModule]float64 `json:"latest"`
	Average float64                      `json:"average"`
	Count   int                          `json:"count"`
	Trend   []TrendPoint                 `json:"trend"`
}

// Summarize builds a Summary from results ordered newest-first. Provisional
// results count towards Count but not towards Latest, Average or Trend.
func Summarize(results []model.TestResult) Summary {
	s := Summary{
		Latest: make(map[model.TestModule]float64),
		Count:  len(results),
	}
	var sum float64
	var graded []model.TestResult
	for _, r := range results {
		if !r.Graded() {
			continue
		}
		graded = append(graded, r)
		sum += r.Score
		if _, ok := s.Latest[r.Module]; !ok {
			s.Latest[r.Module] = r.Score
		}
	}
	if len(graded) > 0 {
		s.Average = roundHalf(sum / float64(len(graded)))
	}

	n := min(len(graded), TrendSize)
	s.Trend = make([]TrendPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		r := graded[i]
		s.Trend = append(s.Trend, TrendPoint{
			Date:   r.Date.Format("2006-01-02"),
			Module: r.Module,
			Score:  r.Score,
		})
	}
	return s
}

// roundHalf rounds to the nearest half band.
func roundHalf(v float64) float64 {
	return math.Round(v*2) / 2
}
