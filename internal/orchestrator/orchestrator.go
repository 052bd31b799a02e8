// Package orchestrator runs the three evaluation branches concurrently and
// fuses their outcomes into the final decision.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/evidence"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/fusion"
	"github.com/opensource-finance/kestrel/internal/summary"
)

// EngineVersion is stamped into decision metadata for replayability.
const EngineVersion = "kestrel/1"

// SubmissionRecorder bumps per-client submission counters before the fraud
// rules read them.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, tenantID, clientID string, windowSecs int) (int64, error)
}

// Orchestrator coordinates one evaluation: structured, evidence and fraud
// branches each run under their own deadline, then the fusion table decides.
type Orchestrator struct {
	classifier domain.Classifier
	embedder   domain.Embedder
	searcher   domain.Searcher
	detector   domain.FraudDetector
	recorder   SubmissionRecorder

	branchTimeout time.Duration
	topK          int
	minEvidence   int
	velocityWin   int

	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an orchestrator from the fusion configuration.
func New(
	classifier domain.Classifier,
	embedder domain.Embedder,
	searcher domain.Searcher,
	detector domain.FraudDetector,
	recorder SubmissionRecorder,
	cfg domain.FusionConfig,
	logger *slog.Logger,
) *Orchestrator {
	timeout := time.Duration(cfg.BranchTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	minEvidence := cfg.MinEvidence
	if minEvidence <= 0 {
		minEvidence = 3
	}

	return &Orchestrator{
		classifier:    classifier,
		embedder:      embedder,
		searcher:      searcher,
		detector:      detector,
		recorder:      recorder,
		branchTimeout: timeout,
		topK:          topK,
		minEvidence:   minEvidence,
		velocityWin:   cfg.VelocityWindow,
		logger:        logger,
		tracer:        otel.Tracer("kestrel/orchestrator"),
	}
}

type branchOutcome[T any] struct {
	value   T
	err     error
	elapsed time.Duration
}

// Evaluation is the fused decision with its branch timings.
type Evaluation struct {
	Result   *domain.FusionResult
	Metadata domain.DecisionMetadata
}

// Evaluate runs the full pipeline for one application. Branch failures and
// timeouts degrade the decision instead of failing it: Evaluate errors only
// on a cancelled caller context.
func (o *Orchestrator) Evaluate(ctx context.Context, tenantID string, pkg *domain.ApplicationPackage) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.evaluate",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("case.id", pkg.CaseID),
		))
	defer span.End()

	start := time.Now()

	if o.recorder != nil && pkg.ClientIdentity.ClientID != "" {
		if _, err := o.recorder.RecordSubmission(ctx, tenantID, pkg.ClientIdentity.ClientID, o.velocityWin); err != nil {
			o.logger.Warn("failed to record submission velocity",
				"tenant_id", tenantID, "client_id", pkg.ClientIdentity.ClientID, "error", err)
		}
	}

	structuredCh := make(chan branchOutcome[*domain.StructuredAssessment], 1)
	evidenceCh := make(chan branchOutcome[*domain.EvidenceAssessment], 1)
	fraudCh := make(chan branchOutcome[*domain.FraudSignal], 1)

	// Each branch gets its own deadline derived from the request context,
	// so one slow branch cannot cancel the others.
	go func() {
		branchCtx, cancel := context.WithTimeout(ctx, o.branchTimeout)
		defer cancel()
		begun := time.Now()
		assessment, err := o.runStructured(branchCtx, pkg)
		structuredCh <- branchOutcome[*domain.StructuredAssessment]{assessment, err, time.Since(begun)}
	}()

	go func() {
		branchCtx, cancel := context.WithTimeout(ctx, o.branchTimeout)
		defer cancel()
		begun := time.Now()
		assessment, err := o.runEvidence(branchCtx, tenantID, pkg)
		evidenceCh <- branchOutcome[*domain.EvidenceAssessment]{assessment, err, time.Since(begun)}
	}()

	go func() {
		branchCtx, cancel := context.WithTimeout(ctx, o.branchTimeout)
		defer cancel()
		begun := time.Now()
		signal, err := o.runFraud(branchCtx, tenantID, pkg)
		fraudCh <- branchOutcome[*domain.FraudSignal]{signal, err, time.Since(begun)}
	}()

	structured := <-structuredCh
	evidenced := <-evidenceCh
	fraud := <-fraudCh

	if structured.err != nil {
		o.logger.Warn("structured branch failed",
			"tenant_id", tenantID, "case_id", pkg.CaseID, "error", structured.err)
	}
	if evidenced.err != nil {
		o.logger.Warn("evidence branch failed",
			"tenant_id", tenantID, "case_id", pkg.CaseID, "error", evidenced.err)
	}
	if fraud.err != nil {
		o.logger.Warn("fraud branch failed",
			"tenant_id", tenantID, "case_id", pkg.CaseID, "error", fraud.err)
	}

	result := fusion.Fuse(structured.value, evidenced.value, fraud.value)

	span.SetAttributes(
		attribute.String("decision.final", string(result.FinalDecision)),
		attribute.String("decision.reason", string(result.Reason)),
		attribute.Bool("decision.degraded", result.Degraded),
	)

	o.logger.Info("application evaluated",
		"tenant_id", tenantID,
		"case_id", pkg.CaseID,
		"final_decision", result.FinalDecision,
		"reason", result.Reason,
		"confidence", result.Confidence,
		"degraded", result.Degraded,
		"total_ms", time.Since(start).Milliseconds(),
	)

	return &Evaluation{
		Result: result,
		Metadata: domain.DecisionMetadata{
			TraceID:       span.SpanContext().TraceID().String(),
			StructuredMs:  structured.elapsed.Milliseconds(),
			EvidenceMs:    evidenced.elapsed.Milliseconds(),
			FraudMs:       fraud.elapsed.Milliseconds(),
			TotalMs:       time.Since(start).Milliseconds(),
			EngineVersion: EngineVersion,
		},
	}, nil
}

// EmbedSummary exposes the evidence embedder for out-of-band case ingestion.
func (o *Orchestrator) EmbedSummary(ctx context.Context, text string) ([]float32, error) {
	return o.embedder.Embed(ctx, text)
}

func (o *Orchestrator) runStructured(ctx context.Context, pkg *domain.ApplicationPackage) (*domain.StructuredAssessment, error) {
	f := features.Extract(pkg)

	done := make(chan branchOutcome[*domain.StructuredAssessment], 1)
	go func() {
		assessment, err := o.classifier.Assess(ctx, f)
		done <- branchOutcome[*domain.StructuredAssessment]{value: assessment, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("structured branch: %w", ctx.Err())
	}
}

func (o *Orchestrator) runEvidence(ctx context.Context, tenantID string, pkg *domain.ApplicationPackage) (*domain.EvidenceAssessment, error) {
	done := make(chan branchOutcome[*domain.EvidenceAssessment], 1)
	go func() {
		assessment, err := o.evidencePipeline(ctx, tenantID, pkg)
		done <- branchOutcome[*domain.EvidenceAssessment]{value: assessment, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("evidence branch: %w", ctx.Err())
	}
}

func (o *Orchestrator) runFraud(ctx context.Context, tenantID string, pkg *domain.ApplicationPackage) (*domain.FraudSignal, error) {
	done := make(chan branchOutcome[*domain.FraudSignal], 1)
	go func() {
		signal, err := o.detector.Detect(ctx, tenantID, pkg)
		done <- branchOutcome[*domain.FraudSignal]{value: signal, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("fraud branch: %w", ctx.Err())
	}
}

func (o *Orchestrator) evidencePipeline(ctx context.Context, tenantID string, pkg *domain.ApplicationPackage) (*domain.EvidenceAssessment, error) {
	text := summary.Render(pkg)

	vector, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding summary: %w", err)
	}

	neighbors, err := o.searcher.Search(ctx, tenantID, vector, o.topK)
	if err != nil {
		return nil, fmt.Errorf("searching corpus: %w", err)
	}

	return evidence.Assess(neighbors, o.minEvidence), nil
}
