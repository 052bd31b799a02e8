package evidence

import (
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func neighbor(outcome domain.Prediction, sim float64) domain.Neighbor {
	return domain.Neighbor{Outcome: outcome, Similarity: sim}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		name           string
		neighbors      []domain.Neighbor
		minEvidence    int
		wantMode       domain.EvidenceMode
		wantDecision   domain.Prediction
		wantConfidence float64
	}{
		{
			name:        "empty corpus is cold start",
			neighbors:   nil,
			minEvidence: 3,
			wantMode:    domain.EvidenceColdStart,
		},
		{
			name: "below minimum is cold start",
			neighbors: []domain.Neighbor{
				neighbor(domain.PredictAccept, 0.9),
				neighbor(domain.PredictAccept, 0.8),
			},
			minEvidence: 3,
			wantMode:    domain.EvidenceColdStart,
		},
		{
			name: "unanimous accept",
			neighbors: []domain.Neighbor{
				neighbor(domain.PredictAccept, 0.9),
				neighbor(domain.PredictAccept, 0.8),
				neighbor(domain.PredictAccept, 0.7),
			},
			minEvidence:    3,
			wantMode:       domain.EvidenceNormal,
			wantDecision:   domain.PredictAccept,
			wantConfidence: 1.0,
		},
		{
			name: "weighted majority wins over head count",
			neighbors: []domain.Neighbor{
				neighbor(domain.PredictReject, 0.9),
				neighbor(domain.PredictAccept, 0.3),
				neighbor(domain.PredictAccept, 0.3),
			},
			minEvidence:    3,
			wantMode:       domain.EvidenceNormal,
			wantDecision:   domain.PredictReject,
			wantConfidence: 0.9 / 1.5,
		},
		{
			name: "exact tie goes to reject",
			neighbors: []domain.Neighbor{
				neighbor(domain.PredictAccept, 0.5),
				neighbor(domain.PredictReject, 0.4),
				neighbor(domain.PredictReject, 0.1),
			},
			minEvidence:    3,
			wantMode:       domain.EvidenceNormal,
			wantDecision:   domain.PredictReject,
			wantConfidence: 0.5,
		},
		{
			name: "negative similarity contributes nothing",
			neighbors: []domain.Neighbor{
				neighbor(domain.PredictAccept, 0.8),
				neighbor(domain.PredictReject, -0.9),
				neighbor(domain.PredictReject, 0.2),
			},
			minEvidence:    3,
			wantMode:       domain.EvidenceNormal,
			wantDecision:   domain.PredictAccept,
			wantConfidence: 0.8,
		},
		{
			name: "all zero weight is cold start",
			neighbors: []domain.Neighbor{
				neighbor(domain.PredictAccept, 0),
				neighbor(domain.PredictReject, 0),
				neighbor(domain.PredictReject, 0),
			},
			minEvidence: 3,
			wantMode:    domain.EvidenceColdStart,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Assess(tc.neighbors, tc.minEvidence)
			if got.Mode != tc.wantMode {
				t.Fatalf("mode = %s, want %s", got.Mode, tc.wantMode)
			}
			if got.NeighborCount != len(tc.neighbors) {
				t.Errorf("neighbor count = %d, want %d", got.NeighborCount, len(tc.neighbors))
			}
			if tc.wantMode == domain.EvidenceColdStart {
				if got.Decision != "" || got.Confidence != 0 {
					t.Errorf("cold start carries a decision: %s/%v", got.Decision, got.Confidence)
				}
				return
			}
			if got.Decision != tc.wantDecision {
				t.Errorf("decision = %s, want %s", got.Decision, tc.wantDecision)
			}
			if math.Abs(got.Confidence-tc.wantConfidence) > 1e-9 {
				t.Errorf("confidence = %v, want %v", got.Confidence, tc.wantConfidence)
			}
		})
	}
}

func TestAssessTopSimilarity(t *testing.T) {
	got := Assess([]domain.Neighbor{
		neighbor(domain.PredictAccept, 0.4),
		neighbor(domain.PredictReject, 0.93),
		neighbor(domain.PredictAccept, 0.6),
	}, 3)
	if got.TopSimilarity != 0.93 {
		t.Errorf("top similarity = %v, want 0.93", got.TopSimilarity)
	}
}
