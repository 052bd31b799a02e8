package domain

import (
	"context"
)

// Classifier assesses a structured feature vector. External model services and
// the built-in heuristic both implement it; the orchestrator does not care which.
type Classifier interface {
	Assess(ctx context.Context, features map[string]float64) (*StructuredAssessment, error)
}

// Embedder maps a case summary to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length this embedder produces.
	Dimension() int
}

// Searcher returns the k nearest historical cases for a query vector,
// most similar first.
type Searcher interface {
	Search(ctx context.Context, tenantID string, vector []float32, k int) ([]Neighbor, error)
}

// FraudDetector evaluates an application for fraud indicators.
type FraudDetector interface {
	Detect(ctx context.Context, tenantID string, pkg *ApplicationPackage) (*FraudSignal, error)
}
