package domain

// Prediction is the binary verdict of a single pipeline.
type Prediction string

const (
	PredictAccept Prediction = "ACCEPT"
	PredictReject Prediction = "REJECT"
)

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// StructuredAssessment is the output of the structured-feature classifier.
// RiskScore is the probability of default; Prediction follows from it.
type StructuredAssessment struct {
	RiskScore  float64    `json:"risk_score"`
	RiskLevel  RiskLevel  `json:"risk_level"`
	Prediction Prediction `json:"prediction"`
	ModelUsed  string     `json:"model_used,omitempty"`
}

// Confidence returns the score's support for the chosen side: the risk score
// itself for a REJECT prediction, its complement for an ACCEPT.
func (a *StructuredAssessment) Confidence() float64 {
	if a.Prediction == PredictReject {
		return a.RiskScore
	}
	return 1 - a.RiskScore
}

// EvidenceMode tells whether the similarity corpus held enough comparable cases.
type EvidenceMode string

const (
	EvidenceNormal    EvidenceMode = "NORMAL"
	EvidenceColdStart EvidenceMode = "COLD_START"
)

// EvidenceAssessment is the output of the historical-case pipeline.
// Decision and Confidence are meaningful only when Mode is NORMAL.
type EvidenceAssessment struct {
	Mode          EvidenceMode `json:"mode"`
	Decision      Prediction   `json:"decision,omitempty"`
	Confidence    float64      `json:"confidence"`
	NeighborCount int          `json:"neighbor_count"`
	TopSimilarity float64      `json:"top_similarity,omitempty"`
}

// Neighbor is one retrieved historical case with its resolved outcome.
type Neighbor struct {
	CaseID     string     `json:"case_id"`
	Outcome    Prediction `json:"outcome"`
	Similarity float64    `json:"similarity"`
}

// FraudSignal is the fraud detector's verdict. Detector failure is surfaced as
// Detected=false with Degraded=true rather than as an error.
type FraudSignal struct {
	Detected bool     `json:"detected"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons,omitempty"`
	Degraded bool     `json:"degraded,omitempty"`
}

// FinalDecision is the fused outcome of an evaluation.
type FinalDecision string

const (
	DecisionAccept       FinalDecision = "ACCEPT"
	DecisionReject       FinalDecision = "REJECT"
	DecisionManualReview FinalDecision = "MANUAL_REVIEW_REQUIRED"
	DecisionFraudStop    FinalDecision = "FRAUD_STOP"
	DecisionColdStart    FinalDecision = "COLD_START"
)

// Reason identifies which fusion rule produced the final decision.
// Exactly one reason maps to each rule branch.
type Reason string

const (
	ReasonFraudDetected            Reason = "FRAUD_DETECTED"
	ReasonColdStartMLPriority      Reason = "COLD_START_ML_PRIORITY"
	ReasonBothAgreeAccept          Reason = "BOTH_MODELS_AGREE_ACCEPT"
	ReasonBothAgreeReject          Reason = "BOTH_MODELS_AGREE_REJECT"
	ReasonModelsDisagree           Reason = "MODELS_DISAGREE"
	ReasonStructuredUnavailable    Reason = "STRUCTURED_UNAVAILABLE_EVIDENCE_PRIORITY"
	ReasonEvidenceUnavailable      Reason = "EVIDENCE_UNAVAILABLE_TREATED_COLD_START"
	ReasonBothPipelinesUnavailable Reason = "BOTH_PIPELINES_UNAVAILABLE"
)

// FusionResult is the authoritative decision for one application.
// It is a pure function of the three branch outcomes: identical inputs
// always produce an identical result.
type FusionResult struct {
	FinalDecision FinalDecision `json:"final_decision"`
	Reason        Reason        `json:"reason"`
	Confidence    float64       `json:"confidence"`

	// Prediction carries the operative structured verdict when
	// FinalDecision is COLD_START; the caller acts on it.
	Prediction Prediction `json:"prediction,omitempty"`

	Structured *StructuredAssessment `json:"ml_assessment"`
	Evidence   *EvidenceAssessment   `json:"qdrant_assessment"`
	Fraud      *FraudSignal          `json:"fraud_signal,omitempty"`

	Degraded bool `json:"degraded"`
}

// RequiresHuman reports whether the decision needs human follow-up.
func (r *FusionResult) RequiresHuman() bool {
	return r.FinalDecision == DecisionManualReview ||
		r.FinalDecision == DecisionFraudStop ||
		r.FinalDecision == DecisionColdStart
}
