// Package fusion combines the three pipeline outcomes into the final
// decision. Fuse is a total pure function: it never errors, and identical
// inputs always produce identical results, which is what makes decisions
// replayable from their audit records.
package fusion

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Fuse applies the decision table. A nil structured or evidence assessment
// means that pipeline failed or timed out; a nil fraud signal means the fraud
// detector itself failed and is folded in as a degraded non-detection. The
// rules are ordered by strict priority and the first match wins.
func Fuse(structured *domain.StructuredAssessment, evidence *domain.EvidenceAssessment, fraud *domain.FraudSignal) *domain.FusionResult {
	if fraud == nil {
		fraud = &domain.FraudSignal{Degraded: true}
	}

	degraded := structured == nil || evidence == nil || fraud.Degraded

	result := &domain.FusionResult{
		Structured: structured,
		Evidence:   evidence,
		Fraud:      fraud,
		Degraded:   degraded,
	}

	// Fraud trumps everything, including pipeline outages.
	if fraud.Detected {
		result.FinalDecision = domain.DecisionFraudStop
		result.Reason = domain.ReasonFraudDetected
		result.Confidence = fraud.Score
		return result
	}

	evidenceUsable := evidence != nil && evidence.Mode == domain.EvidenceNormal

	// With no structured verdict and no usable evidence there is no signal
	// left to decide on. A cold-start evidence assessment counts as no
	// signal here: it carries no decision.
	if structured == nil && !evidenceUsable {
		result.FinalDecision = domain.DecisionManualReview
		result.Reason = domain.ReasonBothPipelinesUnavailable
		result.Confidence = 0
		return result
	}

	if structured == nil {
		result.FinalDecision = domain.FinalDecision(evidence.Decision)
		result.Reason = domain.ReasonStructuredUnavailable
		result.Confidence = evidence.Confidence
		return result
	}

	if evidence == nil {
		result.FinalDecision = domain.DecisionColdStart
		result.Reason = domain.ReasonEvidenceUnavailable
		result.Confidence = structured.Confidence()
		result.Prediction = structured.Prediction
		return result
	}

	if evidence.Mode == domain.EvidenceColdStart {
		result.FinalDecision = domain.DecisionColdStart
		result.Reason = domain.ReasonColdStartMLPriority
		result.Confidence = structured.Confidence()
		result.Prediction = structured.Prediction
		return result
	}

	if structured.Prediction == evidence.Decision {
		result.Confidence = (structured.Confidence() + evidence.Confidence) / 2
		if structured.Prediction == domain.PredictAccept {
			result.FinalDecision = domain.DecisionAccept
			result.Reason = domain.ReasonBothAgreeAccept
		} else {
			result.FinalDecision = domain.DecisionReject
			result.Reason = domain.ReasonBothAgreeReject
		}
		return result
	}

	result.FinalDecision = domain.DecisionManualReview
	result.Reason = domain.ReasonModelsDisagree
	result.Confidence = min(structured.Confidence(), evidence.Confidence)
	return result
}
