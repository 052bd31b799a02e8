// Package index holds the in-memory similarity index over resolved cases.
// Vectors are loaded from the repository at startup and appended as cases
// resolve; searches scan per-tenant partitions under a read lock.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type entry struct {
	caseID  string
	outcome domain.Prediction
	vector  []float32
	norm    float64
}

// Index is a cosine-similarity k-NN index partitioned by tenant.
type Index struct {
	mu      sync.RWMutex
	dim     int
	tenants map[string][]entry
	logger  *slog.Logger
}

func New(dim int, logger *slog.Logger) *Index {
	return &Index{
		dim:     dim,
		tenants: make(map[string][]entry),
		logger:  logger,
	}
}

// Load replaces the index contents with the repository's resolved cases.
func (ix *Index) Load(ctx context.Context, repo domain.Repository, tenantID string) error {
	cases, err := repo.ListCases(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("loading cases: %w", err)
	}

	entries := make([]entry, 0, len(cases))
	for _, c := range cases {
		e, err := ix.newEntry(c.ID, c.Outcome, c.Vector)
		if err != nil {
			ix.logger.Warn("skipping unindexable case", "case_id", c.ID, "error", err)
			continue
		}
		entries = append(entries, e)
	}

	ix.mu.Lock()
	ix.tenants[tenantID] = entries
	ix.mu.Unlock()

	ix.logger.Info("similarity index loaded", "tenant_id", tenantID, "cases", len(entries))
	return nil
}

// Add indexes one resolved case.
func (ix *Index) Add(tenantID string, c *domain.Case) error {
	e, err := ix.newEntry(c.ID, c.Outcome, c.Vector)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.tenants[tenantID] = append(ix.tenants[tenantID], e)
	ix.mu.Unlock()
	return nil
}

// Size returns the number of indexed cases for a tenant.
func (ix *Index) Size(tenantID string) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.tenants[tenantID])
}

// Search returns the k most similar cases, most similar first. Cases with a
// zero-norm vector never match.
func (ix *Index) Search(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != ix.dim {
		return nil, fmt.Errorf("query has %d dimensions, index has %d", len(vector), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	var queryNorm float64
	for _, v := range vector {
		queryNorm += float64(v) * float64(v)
	}
	queryNorm = math.Sqrt(queryNorm)
	if queryNorm == 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entries := ix.tenants[tenantID]
	neighbors := make([]domain.Neighbor, 0, len(entries))
	for _, e := range entries {
		if e.norm == 0 {
			continue
		}
		var dot float64
		for i, v := range e.vector {
			dot += float64(v) * float64(vector[i])
		}
		neighbors = append(neighbors, domain.Neighbor{
			CaseID:     e.caseID,
			Outcome:    e.outcome,
			Similarity: dot / (e.norm * queryNorm),
		})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Similarity > neighbors[j].Similarity
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func (ix *Index) newEntry(caseID string, outcome domain.Prediction, vector []float32) (entry, error) {
	if len(vector) != ix.dim {
		return entry{}, fmt.Errorf("case vector has %d dimensions, index has %d", len(vector), ix.dim)
	}
	if outcome != domain.PredictAccept && outcome != domain.PredictReject {
		return entry{}, fmt.Errorf("case outcome %q is not a terminal outcome", outcome)
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	return entry{
		caseID:  caseID,
		outcome: outcome,
		vector:  vector,
		norm:    math.Sqrt(norm),
	}, nil
}
