package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const vectorTTL = 24 * time.Hour

// Embedding vectors depend only on the text, so they live under one
// cache tenant instead of per-client namespaces.
const cacheTenant = "embeddings"

// Cached wraps an embedder with the shared cache, keyed by the summary's
// SHA-256 digest. Cache failures never fail an embed.
type Cached struct {
	inner  domain.Embedder
	cache  domain.Cache
	logger *slog.Logger
}

func NewCached(inner domain.Embedder, cache domain.Cache, logger *slog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		cache:  cache,
		logger: logger,
	}
}

func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	digest := summaryDigest(text)

	if vec, err := c.cache.GetVector(ctx, cacheTenant, digest); err != nil {
		c.logger.Warn("vector cache read failed", "error", err)
	} else if len(vec) == c.inner.Dimension() {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetVector(ctx, cacheTenant, digest, vec, vectorTTL); err != nil {
		c.logger.Warn("vector cache write failed", "error", err)
	}
	return vec, nil
}

func summaryDigest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// New builds the embedder selected by the configuration.
func New(cfg domain.EmbeddingConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocal(cfg.Dimension), nil
	case "remote":
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("remote embedder requires a URL")
		}
		timeout := time.Duration(cfg.RemoteTimeout) * time.Second
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		return NewRemote(cfg.RemoteURL, cfg.Dimension, timeout), nil
	default:
		return nil, fmt.Errorf("unknown embedder type: %s", cfg.Type)
	}
}
