package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/assessor"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/embedding"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/index"
	"github.com/opensource-finance/kestrel/internal/orchestrator"
)

func testStack(t *testing.T) (*bus.ChannelBus, *orchestrator.Orchestrator, *index.Index) {
	t.Helper()

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	fusionCfg := domain.FusionConfig{
		BranchTimeout:  5,
		TopK:           5,
		MinEvidence:    3,
		FraudThreshold: 0.7,
		VelocityWindow: 3600,
	}

	engine, err := fraud.NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	detector := fraud.NewDetector(engine, fusionCfg, logger)

	embedder, err := embedding.New(domain.EmbeddingConfig{Type: "local", Dimension: 64})
	if err != nil {
		t.Fatalf("embedding.New: %v", err)
	}
	idx := index.New(64, logger)

	orch := orchestrator.New(assessor.NewHeuristic(), embedder, idx, detector, nil, fusionCfg, logger)

	return eventBus, orch, idx
}

// caseRecorder captures persisted cases; all other repository methods are
// unused by the paths under test.
type caseRecorder struct {
	domain.Repository
	mu    sync.Mutex
	saved []*domain.Case
}

func (r *caseRecorder) SaveCase(ctx context.Context, tenantID string, c *domain.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, c)
	return nil
}

func (r *caseRecorder) savedCases() []*domain.Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Case(nil), r.saved...)
}

func testApplication(caseID string) domain.ApplicationPackage {
	return domain.ApplicationPackage{
		CaseID: caseID,
		ClientIdentity: domain.ClientIdentity{
			ClientID:     "client-001",
			Age:          34,
			ClientStatus: domain.ClientRegular,
		},
		ProfessionalSituation: domain.ProfessionalSituation{
			ProfessionalStatus: domain.StatusEmployeeCDI,
			Stability:          domain.LevelHigh,
		},
		FinancialSituation: domain.FinancialSituation{
			MonthlyIncomeNet:     3200,
			MonthlyFixedExpenses: 1200,
			BankingHistory:       domain.HistoryNoIncident,
		},
		CreditRequest: domain.CreditRequest{
			CreditType:      domain.CreditAuto,
			AmountRequested: 15000,
			DurationMonths:  48,
			Purpose:         domain.PurposeInvestment,
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

func TestWorker(t *testing.T) {
	eventBus, orch, idx := testStack(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, nil, orch, idx)

		cfg := Config{
			TenantIDs: []string{"tenant-001"},
		}

		err := w.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}

		err = w.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessApplication", func(t *testing.T) {
		w := NewWorker(eventBus, nil, orch, idx)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track decision results
		var decisionReceived atomic.Bool
		var decisionPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			decisionPayload = msg.Payload
			decisionReceived.Store(true)
			return nil
		})

		var reviewReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicReviewQueue, func(ctx context.Context, msg *domain.Message) error {
			reviewReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		pkg := testApplication("case-async-001")
		payload, _ := json.Marshal(pkg)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicApplicationSubmitted, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(200 * time.Millisecond)

		if !decisionReceived.Load() {
			t.Fatal("expected decision to be published")
		}

		var rec domain.DecisionRecord
		if err := json.Unmarshal(decisionPayload, &rec); err != nil {
			t.Fatalf("failed to parse decision: %v", err)
		}

		if rec.ApplicationID != "case-async-001" {
			t.Errorf("expected applicationId 'case-async-001', got '%s'", rec.ApplicationID)
		}
		if rec.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", rec.TenantID)
		}
		// Empty corpus: evidence is cold start, the decision needs a human,
		// so the review queue event fires as well.
		if rec.Result.FinalDecision != domain.DecisionColdStart {
			t.Errorf("expected COLD_START, got %s", rec.Result.FinalDecision)
		}
		if !reviewReceived.Load() {
			t.Error("expected review queue event for a human-follow-up decision")
		}
	})

	t.Run("ProcessResolvedCase", func(t *testing.T) {
		w := NewWorker(eventBus, nil, orch, idx)

		cfg := Config{
			TenantIDs: []string{"tenant-cases"},
		}
		w.Start(cfg)
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		c := domain.Case{
			ID:         "case-resolved-001",
			TenantID:   "tenant-cases",
			Summary:    "Regular client, stable employment, auto loan repaid on schedule.",
			Outcome:    domain.PredictAccept,
			ResolvedAt: time.Now().UTC(),
		}

		payload, _ := json.Marshal(c)
		err := eventBus.Publish(context.Background(), "tenant-cases", domain.TopicCaseResolved, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(200 * time.Millisecond)

		// The summary is embedded on ingestion, so the case lands in the index.
		if idx.Size("tenant-cases") != 1 {
			t.Errorf("expected 1 indexed case, got %d", idx.Size("tenant-cases"))
		}
	})

	t.Run("UnconfiguredTenantFallsBackToWildcard", func(t *testing.T) {
		repo := &caseRecorder{}
		w := NewWorker(eventBus, repo, orch, idx)

		// No tenant list: the worker must still consume events from any
		// tenant, or cases accepted by the API would be silently lost.
		w.Start(Config{})
		defer w.Stop()

		if got := w.GetStats().SubscriptionCount; got != 2 {
			t.Fatalf("expected 2 wildcard subscriptions, got %d", got)
		}

		time.Sleep(50 * time.Millisecond)

		c := domain.Case{
			ID:         "case-wild-001",
			TenantID:   "tenant-unconfigured",
			Summary:    "Occasional client, personal loan settled early without incident.",
			Outcome:    domain.PredictAccept,
			ResolvedAt: time.Now().UTC(),
		}

		payload, _ := json.Marshal(c)
		if err := eventBus.Publish(context.Background(), "tenant-unconfigured", domain.TopicCaseResolved, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		time.Sleep(200 * time.Millisecond)

		saved := repo.savedCases()
		if len(saved) != 1 {
			t.Fatalf("expected 1 persisted case, got %d", len(saved))
		}
		if saved[0].TenantID != "tenant-unconfigured" {
			t.Errorf("expected tenantID 'tenant-unconfigured', got '%s'", saved[0].TenantID)
		}
		if idx.Size("tenant-unconfigured") != 1 {
			t.Errorf("expected 1 indexed case, got %d", idx.Size("tenant-unconfigured"))
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, orch, idx)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 4 {
			t.Errorf("expected 4 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}
