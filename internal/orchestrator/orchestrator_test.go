package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type fakeClassifier struct {
	assessment *domain.StructuredAssessment
	err        error
	delay      time.Duration
}

func (f *fakeClassifier) Assess(ctx context.Context, features map[string]float64) (*domain.StructuredAssessment, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.assessment, f.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

type fakeSearcher struct {
	neighbors []domain.Neighbor
	err       error
	delay     time.Duration
}

func (f *fakeSearcher) Search(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.Neighbor, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.neighbors, f.err
}

type fakeDetector struct {
	signal *domain.FraudSignal
	err    error
}

func (f *fakeDetector) Detect(ctx context.Context, tenantID string, pkg *domain.ApplicationPackage) (*domain.FraudSignal, error) {
	return f.signal, f.err
}

type fakeRecorder struct {
	calls int
}

func (f *fakeRecorder) RecordSubmission(ctx context.Context, tenantID, clientID string, windowSecs int) (int64, error) {
	f.calls++
	return int64(f.calls), nil
}

func testPackage() *domain.ApplicationPackage {
	return &domain.ApplicationPackage{
		CaseID: "case-1",
		ClientIdentity: domain.ClientIdentity{
			ClientID:     "client-1",
			Age:          35,
			ClientStatus: domain.ClientRegular,
		},
		ProfessionalSituation: domain.ProfessionalSituation{
			ProfessionalStatus: domain.StatusEmployeeCDI,
			Stability:          domain.LevelHigh,
		},
		FinancialSituation: domain.FinancialSituation{
			MonthlyIncomeNet: 2500,
			BankingHistory:   domain.HistoryNoIncident,
		},
		CreditRequest: domain.CreditRequest{
			CreditType:      domain.CreditPersonal,
			AmountRequested: 10000,
			DurationMonths:  48,
			Purpose:         domain.PurposeNecessaryExpense,
		},
		BehavioralIndicators: domain.BehavioralIndicators{
			StressLevel:        2,
			UrgencyLevel:       2,
			ProjectClarity:     4,
			EngagementLevel:    4,
			DiscourseCoherence: domain.LevelHigh,
		},
	}
}

func acceptNeighbors() []domain.Neighbor {
	return []domain.Neighbor{
		{CaseID: "h1", Outcome: domain.PredictAccept, Similarity: 0.9},
		{CaseID: "h2", Outcome: domain.PredictAccept, Similarity: 0.8},
		{CaseID: "h3", Outcome: domain.PredictAccept, Similarity: 0.7},
	}
}

func newTestOrchestrator(c domain.Classifier, s domain.Searcher, d domain.FraudDetector, rec SubmissionRecorder) *Orchestrator {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(c, &fakeEmbedder{vector: []float32{1, 0, 0}}, s, d, rec,
		domain.FusionConfig{BranchTimeout: 5, TopK: 5, MinEvidence: 3, VelocityWindow: 3600}, logger)
}

func TestEvaluateAgreement(t *testing.T) {
	rec := &fakeRecorder{}
	o := newTestOrchestrator(
		&fakeClassifier{assessment: &domain.StructuredAssessment{RiskScore: 0.2, Prediction: domain.PredictAccept}},
		&fakeSearcher{neighbors: acceptNeighbors()},
		&fakeDetector{signal: &domain.FraudSignal{}},
		rec,
	)

	eval, err := o.Evaluate(context.Background(), "t1", testPackage())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Result.FinalDecision != domain.DecisionAccept {
		t.Errorf("decision = %s, want ACCEPT", eval.Result.FinalDecision)
	}
	if eval.Result.Degraded {
		t.Error("clean evaluation must not be degraded")
	}
	if rec.calls != 1 {
		t.Errorf("velocity recorded %d times, want 1", rec.calls)
	}
	if eval.Metadata.EngineVersion != EngineVersion {
		t.Errorf("engine version = %s", eval.Metadata.EngineVersion)
	}
}

func TestEvaluateStructuredTimeout(t *testing.T) {
	o := newTestOrchestrator(
		&fakeClassifier{delay: time.Second, assessment: &domain.StructuredAssessment{Prediction: domain.PredictAccept}},
		&fakeSearcher{neighbors: []domain.Neighbor{
			{Outcome: domain.PredictReject, Similarity: 0.9},
			{Outcome: domain.PredictReject, Similarity: 0.8},
			{Outcome: domain.PredictReject, Similarity: 0.7},
		}},
		&fakeDetector{signal: &domain.FraudSignal{}},
		nil,
	)
	o.branchTimeout = 50 * time.Millisecond

	eval, err := o.Evaluate(context.Background(), "t1", testPackage())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Result.FinalDecision != domain.DecisionReject {
		t.Errorf("decision = %s, want evidence-only REJECT", eval.Result.FinalDecision)
	}
	if eval.Result.Reason != domain.ReasonStructuredUnavailable {
		t.Errorf("reason = %s", eval.Result.Reason)
	}
	if !eval.Result.Degraded {
		t.Error("timeout must degrade the decision")
	}
}

func TestEvaluateTimeoutDoesNotCancelOthers(t *testing.T) {
	// The searcher needs more than the branch timeout; the classifier is
	// instant and must still settle normally.
	o := newTestOrchestrator(
		&fakeClassifier{assessment: &domain.StructuredAssessment{RiskScore: 0.9, Prediction: domain.PredictReject}},
		&fakeSearcher{delay: time.Second, neighbors: acceptNeighbors()},
		&fakeDetector{signal: &domain.FraudSignal{}},
		nil,
	)
	o.branchTimeout = 50 * time.Millisecond

	eval, err := o.Evaluate(context.Background(), "t1", testPackage())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Result.Structured == nil {
		t.Fatal("structured branch lost despite evidence timeout")
	}
	if eval.Result.FinalDecision != domain.DecisionColdStart {
		t.Errorf("decision = %s, want COLD_START", eval.Result.FinalDecision)
	}
	if eval.Result.Reason != domain.ReasonEvidenceUnavailable {
		t.Errorf("reason = %s", eval.Result.Reason)
	}
}

func TestEvaluateFraudStop(t *testing.T) {
	o := newTestOrchestrator(
		&fakeClassifier{assessment: &domain.StructuredAssessment{RiskScore: 0.1, Prediction: domain.PredictAccept}},
		&fakeSearcher{neighbors: acceptNeighbors()},
		&fakeDetector{signal: &domain.FraudSignal{Detected: true, Score: 0.9, Reasons: []string{"velocity burst"}}},
		nil,
	)

	eval, err := o.Evaluate(context.Background(), "t1", testPackage())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Result.FinalDecision != domain.DecisionFraudStop {
		t.Errorf("decision = %s, want FRAUD_STOP", eval.Result.FinalDecision)
	}
	if eval.Result.Confidence != 0.9 {
		t.Errorf("confidence = %v, want fraud score", eval.Result.Confidence)
	}
}

func TestEvaluateAllBranchesFail(t *testing.T) {
	o := newTestOrchestrator(
		&fakeClassifier{err: fmt.Errorf("model down")},
		&fakeSearcher{err: fmt.Errorf("index down")},
		&fakeDetector{err: fmt.Errorf("rules down")},
		nil,
	)

	eval, err := o.Evaluate(context.Background(), "t1", testPackage())
	if err != nil {
		t.Fatalf("Evaluate must absorb branch failures: %v", err)
	}
	if eval.Result.FinalDecision != domain.DecisionManualReview {
		t.Errorf("decision = %s, want MANUAL_REVIEW_REQUIRED", eval.Result.FinalDecision)
	}
	if eval.Result.Reason != domain.ReasonBothPipelinesUnavailable {
		t.Errorf("reason = %s", eval.Result.Reason)
	}
	if !eval.Result.Degraded {
		t.Error("total outage must be degraded")
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	o := newTestOrchestrator(
		&fakeClassifier{assessment: &domain.StructuredAssessment{Prediction: domain.PredictAccept}},
		&fakeSearcher{},
		&fakeDetector{signal: &domain.FraudSignal{}},
		nil,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.Evaluate(ctx, "t1", testPackage()); err == nil {
		t.Fatal("expected error for cancelled caller context")
	}
}

func TestEvaluateEmbedderFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	o := New(
		&fakeClassifier{assessment: &domain.StructuredAssessment{RiskScore: 0.2, Prediction: domain.PredictAccept}},
		&fakeEmbedder{err: fmt.Errorf("service down")},
		&fakeSearcher{neighbors: acceptNeighbors()},
		&fakeDetector{signal: &domain.FraudSignal{}},
		nil,
		domain.FusionConfig{BranchTimeout: 5, TopK: 5, MinEvidence: 3},
		logger,
	)

	eval, err := o.Evaluate(context.Background(), "t1", testPackage())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Result.Reason != domain.ReasonEvidenceUnavailable {
		t.Errorf("reason = %s, want evidence treated as cold start", eval.Result.Reason)
	}
}
