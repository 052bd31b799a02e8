// Package velocity tracks application submission velocity per client.
package velocity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service counts applications a client submitted inside a time window.
// The cache counter is the fast path; the repository answers when the
// counter is cold (after a restart the cache starts empty).
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

func counterKey(clientID string, windowSecs int) string {
	return fmt.Sprintf("velocity:%s:%d", clientID, windowSecs)
}

// RecordSubmission bumps the client's submission counter and returns the new
// count. Called once per accepted submission, before the fraud rules run.
func (s *Service) RecordSubmission(ctx context.Context, tenantID, clientID string, windowSecs int) (int64, error) {
	if tenantID == "" || clientID == "" {
		return 0, fmt.Errorf("tenantID and clientID are required")
	}
	if s.cache == nil {
		return 0, nil
	}
	window := time.Duration(windowSecs) * time.Second
	return s.cache.IncrementCounter(ctx, tenantID, counterKey(clientID, windowSecs), window)
}

// GetApplicationCount returns how many applications the client submitted in
// the window. This is the VelocityGetter signature the fraud engine expects.
func (s *Service) GetApplicationCount(ctx context.Context, tenantID, clientID string, windowSecs int) (int64, error) {
	if tenantID == "" || clientID == "" {
		return 0, fmt.Errorf("tenantID and clientID are required")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)

	if s.repo != nil {
		count, err := s.repo.CountApplicationsByClient(ctx, tenantID, clientID, since)
		if err == nil {
			return count, nil
		}
	}

	if s.cache == nil {
		return 0, fmt.Errorf("no data source available")
	}

	// Repository unavailable: read the counter without bumping it.
	// Counters are stored as decimal strings by both cache backends.
	raw, err := s.cache.Get(ctx, tenantID, counterKey(clientID, windowSecs))
	if err != nil {
		return 0, fmt.Errorf("failed to read velocity counter: %w", err)
	}
	if raw == nil {
		return 0, nil
	}
	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed velocity counter: %w", err)
	}
	return count, nil
}

// GetVelocityGetter returns the lookup function for the fraud engine.
func (s *Service) GetVelocityGetter() func(ctx context.Context, tenantID, clientID string, windowSecs int) (int64, error) {
	return s.GetApplicationCount
}
