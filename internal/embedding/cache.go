package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/hrplatform/docingest/internal/domain"
)

// Cache stores vectors keyed by model name and text hash.
type Cache interface {
	Get(ctx context.Context, model, textHash string) ([]float32, bool, error)
	Put(ctx context.Context, model, textHash string, vec []float32) error
}

// TextHash is the cache key of a text: hex md5 of its UTF-8 bytes.
func TextHash(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CachedEmbedder serves repeated texts from a Cache. Cache failures are
// logged and treated as misses.
type CachedEmbedder struct {
	inner  Embedder
	cache  Cache
	logger *slog.Logger
}

func NewCachedEmbedder(inner Embedder, cache Cache, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, cache: cache, logger: logger}
}

func (c *CachedEmbedder) Name() string {
	return c.inner.Name()
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.inner.Name()
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))

	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		hashes[i] = TextHash(t)
		vec, ok, err := c.cache.Get(ctx, model, hashes[i])
		if err != nil {
			c.logger.Warn("embedding cache lookup failed", "model", model, "error", err)
		}
		if ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		c.logger.Debug("embedding cache hit", "model", model, "texts", len(texts))
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, domain.WithDetail(domain.ErrEmbeddingCountMismatch,
			fmt.Sprintf("got %d vectors for %d texts", len(vecs), len(missTexts)))
	}

	for j, i := range missIdx {
		out[i] = vecs[j]
		if err := c.cache.Put(ctx, model, hashes[i], vecs[j]); err != nil {
			c.logger.Warn("embedding cache write failed", "model", model, "error", err)
		}
	}

	c.logger.Debug("embedding cache", "model", model, "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return out, nil
}
