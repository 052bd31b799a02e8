package assessor

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

func TestHeuristicScoring(t *testing.T) {
	tests := []struct {
		name           string
		features       map[string]float64
		wantScore      float64
		wantLevel      domain.RiskLevel
		wantPrediction domain.Prediction
	}{
		{
			name:           "clean profile",
			features:       map[string]float64{},
			wantScore:      0.3,
			wantLevel:      domain.RiskMedium,
			wantPrediction: domain.PredictAccept,
		},
		{
			name: "three risk flags",
			features: map[string]float64{
				features.TotalRiskFlags: 3,
			},
			wantScore:      0.6,
			wantLevel:      domain.RiskHigh,
			wantPrediction: domain.PredictAccept,
		},
		{
			name: "unemployed",
			features: map[string]float64{
				features.IsUnemployed: 1,
			},
			wantScore:      0.6,
			wantLevel:      domain.RiskHigh,
			wantPrediction: domain.PredictAccept,
		},
		{
			name: "high debt ratio",
			features: map[string]float64{
				features.DebtRatio: 0.6,
			},
			wantScore:      0.5,
			wantLevel:      domain.RiskMedium,
			wantPrediction: domain.PredictAccept,
		},
		{
			name: "unemployed with incidents rejects",
			features: map[string]float64{
				features.IsUnemployed:          1,
				features.MajorBankingIncidents: 1,
			},
			wantScore:      0.85,
			wantLevel:      domain.RiskHigh,
			wantPrediction: domain.PredictReject,
		},
		{
			name: "everything bad caps at one",
			features: map[string]float64{
				features.TotalRiskFlags:        6,
				features.DebtRatio:             0.9,
				features.IsUnemployed:          1,
				features.MajorBankingIncidents: 1,
				features.JobStabilityLow:       1,
			},
			wantScore:      1.0,
			wantLevel:      domain.RiskHigh,
			wantPrediction: domain.PredictReject,
		},
	}

	h := NewHeuristic()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := h.Assess(context.Background(), tc.features)
			if err != nil {
				t.Fatalf("Assess: %v", err)
			}
			if math.Abs(got.RiskScore-tc.wantScore) > 1e-9 {
				t.Errorf("risk score = %v, want %v", got.RiskScore, tc.wantScore)
			}
			if got.RiskLevel != tc.wantLevel {
				t.Errorf("risk level = %s, want %s", got.RiskLevel, tc.wantLevel)
			}
			if got.Prediction != tc.wantPrediction {
				t.Errorf("prediction = %s, want %s", got.Prediction, tc.wantPrediction)
			}
		})
	}
}

func TestHeuristicCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHeuristic().Assess(ctx, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRemoteAssess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"risk_score": 0.72, "prediction": "REJECT", "model_used": "gbm-v3"}`))
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, time.Second, testLogger())
	got, err := remote.Assess(context.Background(), map[string]float64{"age": 30})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if got.RiskScore != 0.72 {
		t.Errorf("risk score = %v, want 0.72", got.RiskScore)
	}
	if got.RiskLevel != domain.RiskHigh {
		t.Errorf("risk level = %s, want HIGH (derived)", got.RiskLevel)
	}
	if got.Prediction != domain.PredictReject {
		t.Errorf("prediction = %s, want REJECT", got.Prediction)
	}
	if got.ModelUsed != "gbm-v3" {
		t.Errorf("model = %s, want gbm-v3", got.ModelUsed)
	}
}

func TestRemoteFallsBackToHeuristic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, time.Second, testLogger())
	got, err := remote.Assess(context.Background(), map[string]float64{
		features.IsUnemployed: 1,
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if got.ModelUsed != heuristicModelName {
		t.Errorf("model = %s, want heuristic fallback", got.ModelUsed)
	}
	if got.RiskScore != 0.6 {
		t.Errorf("risk score = %v, want 0.6", got.RiskScore)
	}
}

func TestRemoteRejectsOutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"risk_score": 4.2}`))
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL, time.Second, testLogger())
	got, err := remote.Assess(context.Background(), map[string]float64{})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	// Out-of-range score counts as an unusable response: heuristic answers.
	if got.ModelUsed != heuristicModelName {
		t.Errorf("model = %s, want heuristic fallback", got.ModelUsed)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
