package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLocalDeterministic(t *testing.T) {
	e := NewLocal(128)
	a, err := e.Embed(context.Background(), "unemployed client requesting personal credit")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(context.Background(), "unemployed client requesting personal credit")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestLocalUnitNorm(t *testing.T) {
	e := NewLocal(64)
	vec, err := e.Embed(context.Background(), "stable employee with long banking history")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 64 {
		t.Fatalf("dimension = %d, want 64", len(vec))
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("vector norm = %v, want 1.0", math.Sqrt(norm))
	}
}

func TestLocalEmptyText(t *testing.T) {
	vec, err := NewLocal(32).Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v at %d", v, i)
		}
	}
}

func TestLocalDistinguishesTexts(t *testing.T) {
	e := NewLocal(128)
	a, _ := e.Embed(context.Background(), "unemployed high risk major incidents")
	b, _ := e.Embed(context.Background(), "stable low risk no incidents solid capacity")

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot > 0.99 {
		t.Errorf("distinct texts are near-identical: cosine = %v", dot)
	}
}

func TestRemoteEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"vector": [0.6, 0.8]}`)
	}))
	defer srv.Close()

	e := NewRemote(srv.URL, 2, time.Second)
	vec, err := e.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 0.6 || vec[1] != 0.8 {
		t.Errorf("vector = %v, want [0.6 0.8]", vec)
	}
}

func TestRemoteDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"vector": [0.1, 0.2, 0.3]}`)
	}))
	defer srv.Close()

	if _, err := NewRemote(srv.URL, 2, time.Second).Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

type countingCache struct {
	domain.Cache
	vectors map[string][]float32
	hits    int
	misses  int
}

func (c *countingCache) GetVector(ctx context.Context, tenantID, digest string) ([]float32, error) {
	if v, ok := c.vectors[digest]; ok {
		c.hits++
		return v, nil
	}
	c.misses++
	return nil, nil
}

func (c *countingCache) SetVector(ctx context.Context, tenantID, digest string, vector []float32, ttl time.Duration) error {
	c.vectors[digest] = vector
	return nil
}

func TestCachedSkipsInnerOnHit(t *testing.T) {
	cache := &countingCache{vectors: make(map[string][]float32)}
	e := NewCached(NewLocal(32), cache, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	first, err := e.Embed(context.Background(), "repeat summary")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := e.Embed(context.Background(), "repeat summary")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if cache.hits != 1 || cache.misses != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", cache.hits, cache.misses)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	e, err := New(domain.EmbeddingConfig{Type: "local", Dimension: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := e.(*Local); !ok {
		t.Errorf("expected *Local, got %T", e)
	}

	if _, err := New(domain.EmbeddingConfig{Type: "remote"}); err == nil {
		t.Error("expected error for remote embedder without URL")
	}

	if _, err := New(domain.EmbeddingConfig{Type: "quantum"}); err == nil {
		t.Error("expected error for unknown type")
	}
}
