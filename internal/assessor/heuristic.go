// Package assessor provides the structured-feature risk classifiers.
// The heuristic model is the community-tier default and the fallback when
// a remote model is unreachable; the remote client calls a served model.
package assessor

import (
	"context"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

const heuristicModelName = "heuristic-v1"

// Score thresholds. A score strictly above rejectThreshold rejects.
const (
	mediumThreshold = 0.3
	highThreshold   = 0.6
	rejectThreshold = 0.6
)

// Heuristic scores applications with fixed additive penalties. It needs no
// external service and is fully deterministic.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Assess computes the risk score from the feature map.
func (h *Heuristic) Assess(ctx context.Context, f map[string]float64) (*domain.StructuredAssessment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score := 0.3
	if f[features.TotalRiskFlags] >= 3 {
		score += 0.3
	}
	if f[features.DebtRatio] > 0.5 {
		score += 0.2
	}
	if f[features.IsUnemployed] == 1 {
		score += 0.3
	}
	if f[features.MajorBankingIncidents] == 1 {
		score += 0.25
	}
	if f[features.JobStabilityLow] == 1 {
		score += 0.15
	}
	if score > 1.0 {
		score = 1.0
	}

	assessment := &domain.StructuredAssessment{
		RiskScore:  score,
		RiskLevel:  riskLevel(score),
		Prediction: domain.PredictAccept,
		ModelUsed:  heuristicModelName,
	}
	if score > rejectThreshold {
		assessment.Prediction = domain.PredictReject
	}
	return assessment, nil
}

func riskLevel(score float64) domain.RiskLevel {
	switch {
	case score >= highThreshold:
		return domain.RiskHigh
	case score >= mediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
