package domain

import (
	"time"
)

// DecisionRecord is the persisted audit record for one evaluation.
type DecisionRecord struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenantId"`
	ApplicationID string       `json:"applicationId"`
	Result        FusionResult `json:"result"`
	Timestamp     time.Time    `json:"timestamp"`

	Metadata DecisionMetadata `json:"metadata"`
}

// DecisionMetadata contains processing information for auditing.
type DecisionMetadata struct {
	TraceID       string `json:"traceId"`
	StructuredMs  int64  `json:"structuredMs"`
	EvidenceMs    int64  `json:"evidenceMs"`
	FraudMs       int64  `json:"fraudMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// Case is a resolved historical application in the similarity corpus.
// Cases are appended out of band, after the decision is resolved; the live
// evaluation path only reads them.
type Case struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId"`
	Summary    string     `json:"summary"`
	Vector     []float32  `json:"vector"`
	Outcome    Prediction `json:"outcome"`
	ResolvedAt time.Time  `json:"resolvedAt"`
}
