// Package evidence aggregates retrieved historical cases into the
// evidence-pipeline verdict.
package evidence

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Assess turns retrieved neighbors into an evidence assessment. Fewer than
// minEvidence neighbors means the corpus cannot support a verdict and the
// result is COLD_START with no decision. Otherwise the neighbors vote with
// their similarity as weight; ties resolve toward REJECT, and confidence is
// the winning side's share of the total similarity weight.
func Assess(neighbors []domain.Neighbor, minEvidence int) *domain.EvidenceAssessment {
	if len(neighbors) < minEvidence {
		return &domain.EvidenceAssessment{
			Mode:          domain.EvidenceColdStart,
			NeighborCount: len(neighbors),
			TopSimilarity: topSimilarity(neighbors),
		}
	}

	var acceptWeight, rejectWeight float64
	for _, n := range neighbors {
		w := n.Similarity
		if w < 0 {
			w = 0
		}
		switch n.Outcome {
		case domain.PredictAccept:
			acceptWeight += w
		case domain.PredictReject:
			rejectWeight += w
		}
	}

	total := acceptWeight + rejectWeight
	if total == 0 {
		// All-zero similarity carries no information either.
		return &domain.EvidenceAssessment{
			Mode:          domain.EvidenceColdStart,
			NeighborCount: len(neighbors),
			TopSimilarity: topSimilarity(neighbors),
		}
	}

	decision := domain.PredictReject
	winning := rejectWeight
	if acceptWeight > rejectWeight {
		decision = domain.PredictAccept
		winning = acceptWeight
	}

	return &domain.EvidenceAssessment{
		Mode:          domain.EvidenceNormal,
		Decision:      decision,
		Confidence:    winning / total,
		NeighborCount: len(neighbors),
		TopSimilarity: topSimilarity(neighbors),
	}
}

func topSimilarity(neighbors []domain.Neighbor) float64 {
	var top float64
	for _, n := range neighbors {
		if n.Similarity > top {
			top = n.Similarity
		}
	}
	return top
}
