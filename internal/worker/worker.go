// Package worker provides async message processing off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/index"
	"github.com/opensource-finance/kestrel/internal/orchestrator"
)

// Worker consumes submitted applications and resolved cases from the bus.
// Submitted applications run through the full evaluation pipeline; resolved
// cases are persisted and added to the similarity index.
type Worker struct {
	bus  domain.EventBus
	repo domain.Repository
	orch *orchestrator.Orchestrator
	idx  *index.Index

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, orch *orchestrator.Orchestrator, idx *index.Index) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		orch:   orch,
		idx:    idx,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants. Without a
// configured tenant list the worker subscribes across all tenants; the
// handlers pick the real tenant up from the message envelope.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	for _, tenantID := range tenants {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(tenants),
	)

	return nil
}

// startTenantWorker subscribes the pipeline topics for one tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicApplicationSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.processApplication(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	caseSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicCaseResolved, func(ctx context.Context, msg *domain.Message) error {
		return w.processResolvedCase(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, caseSub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topics", []string{domain.TopicApplicationSubmitted, domain.TopicCaseResolved},
	)

	return nil
}

// processApplication evaluates a submitted application through the pipeline.
func (w *Worker) processApplication(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var pkg domain.ApplicationPackage
	if err := json.Unmarshal(msg.Payload, &pkg); err != nil {
		slog.Error("failed to parse application message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if msg.TenantID != "" {
		tenantID = msg.TenantID
	}
	if pkg.CaseID == "" {
		pkg.CaseID = uuid.New().String()
	}

	slog.Debug("processing application",
		"case_id", pkg.CaseID,
		"tenant_id", tenantID,
	)

	evaluation, err := w.orch.Evaluate(ctx, tenantID, &pkg)
	if err != nil {
		slog.Error("evaluation aborted",
			"case_id", pkg.CaseID,
			"error", err,
		)
		return err
	}

	rec := &domain.DecisionRecord{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ApplicationID: pkg.CaseID,
		Result:        *evaluation.Result,
		Timestamp:     time.Now().UTC(),
		Metadata:      evaluation.Metadata,
	}

	if w.repo != nil {
		if err := w.repo.SaveDecision(ctx, tenantID, rec); err != nil {
			slog.Error("failed to save decision",
				"case_id", pkg.CaseID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(rec)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicDecision, resultPayload); err != nil {
		slog.Error("failed to publish decision",
			"case_id", pkg.CaseID,
			"error", err,
		)
	}

	if rec.Result.FinalDecision == domain.DecisionFraudStop {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicFraudAlert, resultPayload); err != nil {
			slog.Error("failed to publish fraud alert",
				"case_id", pkg.CaseID,
				"error", err,
			)
		}
	}

	if rec.Result.RequiresHuman() {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicReviewQueue, resultPayload); err != nil {
			slog.Error("failed to publish review queue event",
				"case_id", pkg.CaseID,
				"error", err,
			)
		}
	}

	slog.Info("application processed",
		"case_id", pkg.CaseID,
		"tenant_id", tenantID,
		"final_decision", rec.Result.FinalDecision,
		"reason", rec.Result.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// processResolvedCase persists a resolved case and adds it to the index.
func (w *Worker) processResolvedCase(ctx context.Context, tenantID string, msg *domain.Message) error {
	var c domain.Case
	if err := json.Unmarshal(msg.Payload, &c); err != nil {
		slog.Error("failed to parse resolved case message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if msg.TenantID != "" {
		tenantID = msg.TenantID
	}
	if c.TenantID != "" {
		tenantID = c.TenantID
	}
	c.TenantID = tenantID

	// Cases without a vector get one from the summary so the corpus stays
	// searchable regardless of how the case was submitted.
	if len(c.Vector) == 0 && c.Summary != "" && w.orch != nil {
		vector, err := w.orch.EmbedSummary(ctx, c.Summary)
		if err != nil {
			slog.Error("failed to embed case summary",
				"case_id", c.ID,
				"error", err,
			)
		} else {
			c.Vector = vector
		}
	}

	if w.repo != nil {
		if err := w.repo.SaveCase(ctx, tenantID, &c); err != nil {
			slog.Error("failed to save case",
				"case_id", c.ID,
				"error", err,
			)
			return err
		}
	}

	if w.idx != nil && len(c.Vector) > 0 {
		if err := w.idx.Add(tenantID, &c); err != nil {
			slog.Error("failed to index case",
				"case_id", c.ID,
				"error", err,
			)
		}
	}

	slog.Info("case resolved",
		"case_id", c.ID,
		"tenant_id", tenantID,
		"outcome", c.Outcome,
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
