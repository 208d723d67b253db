package services

import (
	"math"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
)

// scoreTotals is what the aggregator computes for one attempt.
type scoreTotals struct {
	PointsEarned   float64
	PointsPossible float64
	Score          float64 // scaled to the lab's max points
	Percentage     float64
}

// aggregateScores recomputes an attempt's totals from effective per-structure
// points. The possible total spans the lab's full answer key, so unanswered
// structures count as zero earned. Running it twice on the same rows yields
// the same totals.
func aggregateScores(lab *models.Lab, structures []*models.Structure, responses []*models.StructureResponse) scoreTotals {
	var totals scoreTotals
	for _, structure := range structures {
		totals.PointsPossible += structure.Points
	}

	known := make(map[uint]float64, len(structures))
	for _, structure := range structures {
		known[structure.ID] = structure.Points
	}
	for _, response := range responses {
		if _, ok := known[response.StructureID]; !ok {
			continue
		}
		totals.PointsEarned += response.EffectivePoints()
	}

	if totals.PointsPossible <= 0 {
		return totals
	}

	fraction := totals.PointsEarned / totals.PointsPossible
	totals.Score = roundTo1(fraction * lab.MaxPoints)
	totals.Percentage = roundTo1(fraction * 100)
	return totals
}

// roundTo1 rounds half away from zero to one decimal place.
func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
