package velocity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type stubRepo struct {
	domain.Repository
	count int64
	err   error
	calls int
}

func (r *stubRepo) CountApplicationsByClient(ctx context.Context, tenantID, clientID string, since time.Time) (int64, error) {
	r.calls++
	return r.count, r.err
}

type stubCache struct {
	domain.Cache
	counters map[string]int64
}

func (c *stubCache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	c.counters[key]++
	return c.counters[key], nil
}

func (c *stubCache) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	if v, ok := c.counters[key]; ok {
		return []byte(fmt.Sprintf("%d", v)), nil
	}
	return nil, nil
}

func TestGetApplicationCountFromRepo(t *testing.T) {
	repo := &stubRepo{count: 4}
	svc := NewService(repo, &stubCache{counters: make(map[string]int64)})

	count, err := svc.GetApplicationCount(context.Background(), "t1", "client-1", 3600)
	if err != nil {
		t.Fatalf("GetApplicationCount: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
	if repo.calls != 1 {
		t.Errorf("repo calls = %d, want 1", repo.calls)
	}
}

func TestGetApplicationCountFallsBackToCounter(t *testing.T) {
	repo := &stubRepo{err: fmt.Errorf("db down")}
	cache := &stubCache{counters: make(map[string]int64)}
	svc := NewService(repo, cache)

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordSubmission(context.Background(), "t1", "client-1", 3600); err != nil {
			t.Fatalf("RecordSubmission: %v", err)
		}
	}

	count, err := svc.GetApplicationCount(context.Background(), "t1", "client-1", 3600)
	if err != nil {
		t.Fatalf("GetApplicationCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 from counter fallback", count)
	}
}

func TestGetApplicationCountColdCounter(t *testing.T) {
	svc := NewService(&stubRepo{err: fmt.Errorf("db down")}, &stubCache{counters: make(map[string]int64)})

	count, err := svc.GetApplicationCount(context.Background(), "t1", "client-1", 3600)
	if err != nil {
		t.Fatalf("GetApplicationCount: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 for cold counter", count)
	}
}

func TestRequiredArguments(t *testing.T) {
	svc := NewService(&stubRepo{}, &stubCache{counters: make(map[string]int64)})

	if _, err := svc.GetApplicationCount(context.Background(), "", "client-1", 60); err == nil {
		t.Error("expected error for empty tenant")
	}
	if _, err := svc.RecordSubmission(context.Background(), "t1", "", 60); err == nil {
		t.Error("expected error for empty client")
	}
}

func TestWindowedCounterKeys(t *testing.T) {
	cache := &stubCache{counters: make(map[string]int64)}
	svc := NewService(&stubRepo{err: fmt.Errorf("down")}, cache)

	svc.RecordSubmission(context.Background(), "t1", "client-1", 3600)
	svc.RecordSubmission(context.Background(), "t1", "client-1", 60)

	hour, _ := svc.GetApplicationCount(context.Background(), "t1", "client-1", 3600)
	minute, _ := svc.GetApplicationCount(context.Background(), "t1", "client-1", 60)
	if hour != 1 || minute != 1 {
		t.Errorf("windows share a counter: hour=%d minute=%d", hour, minute)
	}
}
