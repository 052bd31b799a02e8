package fraud

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

// Detector aggregates rule results into the fraud signal the fusion engine
// consumes. A failed rule contributes its full weight, a review outcome half
// of it; the signal asserts detection when the weighted share reaches the
// configured threshold.
type Detector struct {
	engine         *Engine
	threshold      float64
	velocityWindow int
	logger         *slog.Logger
}

func NewDetector(engine *Engine, cfg domain.FusionConfig, logger *slog.Logger) *Detector {
	return &Detector{
		engine:         engine,
		threshold:      cfg.FraudThreshold,
		velocityWindow: cfg.VelocityWindow,
		logger:         logger,
	}
}

// Detect evaluates all loaded fraud rules against the application.
// Rule evaluation errors degrade the signal instead of failing the branch:
// a broken rule must never block a decision.
func (d *Detector) Detect(ctx context.Context, tenantID string, pkg *domain.ApplicationPackage) (*domain.FraudSignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := d.engine.EvaluateAll(ctx, &EvaluateInput{
		TenantID:       tenantID,
		CaseID:         pkg.CaseID,
		ClientID:       pkg.ClientIdentity.ClientID,
		Features:       features.Extract(pkg),
		VelocityWindow: d.velocityWindow,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &domain.FraudSignal{}, nil
	}

	signal := &domain.FraudSignal{}
	var totalWeight, hitWeight float64
	for _, r := range results {
		switch r.SubRuleRef {
		case domain.RuleOutcomeFail:
			totalWeight += r.Weight
			hitWeight += r.Weight
			signal.Reasons = append(signal.Reasons, r.Reason)
		case domain.RuleOutcomeReview:
			totalWeight += r.Weight
			hitWeight += r.Weight / 2
			signal.Reasons = append(signal.Reasons, r.Reason)
		case domain.RuleOutcomeError:
			signal.Degraded = true
			d.logger.Warn("fraud rule evaluation failed",
				"rule_id", r.RuleID, "tenant_id", tenantID, "reason", r.Reason)
		default:
			totalWeight += r.Weight
		}
	}

	if totalWeight > 0 {
		signal.Score = hitWeight / totalWeight
	}
	signal.Detected = signal.Score >= d.threshold && d.threshold > 0

	return signal, nil
}
