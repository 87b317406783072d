package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrplatform/docingest/internal/domain"
)

// Result is one embedded text together with the embedder that produced it.
type Result struct {
	Vector []float32
	Source domain.EmbeddingSource
}

// FallbackEmbedder tries the primary embedder for the whole batch and falls
// back to hash embeddings, then to the zero vector, per text.
type FallbackEmbedder struct {
	primary Embedder
	hash    Embedder
	logger  *slog.Logger
}

// NewFallbackEmbedder builds a fallback chain. A nil primary means hash only.
func NewFallbackEmbedder(primary Embedder, logger *slog.Logger) *FallbackEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackEmbedder{primary: primary, hash: NewHashEmbedder(), logger: logger}
}

// HasPrimary reports whether a model embedder is configured.
func (f *FallbackEmbedder) HasPrimary() bool {
	return f.primary != nil
}

// EmbedWithSources never fails. The result may be shorter or longer than
// texts only when the primary returned the wrong count; callers reconcile.
func (f *FallbackEmbedder) EmbedWithSources(ctx context.Context, texts []string) []Result {
	if len(texts) == 0 {
		return nil
	}

	if f.primary != nil {
		vecs, err := f.primary.Embed(ctx, texts)
		if err == nil {
			results := make([]Result, len(vecs))
			for i, v := range vecs {
				results[i] = Result{Vector: v, Source: domain.EmbeddingSourceModel}
			}
			return results
		}
		f.logger.Warn("primary embedder failed, using hash fallback",
			"embedder", f.primary.Name(), "texts", len(texts), "error", err)
	}

	results := make([]Result, len(texts))
	for i, t := range texts {
		results[i] = f.embedOne(ctx, t)
	}
	return results
}

func (f *FallbackEmbedder) embedOne(ctx context.Context, text string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("hash embedding panicked, using zero vector", "panic", fmt.Sprint(r))
			res = Result{Vector: ZeroVector(), Source: domain.EmbeddingSourceZero}
		}
	}()

	vecs, err := f.hash.Embed(ctx, []string{text})
	if err != nil || len(vecs) != 1 {
		f.logger.Error("hash embedding failed, using zero vector", "error", err)
		return Result{Vector: ZeroVector(), Source: domain.EmbeddingSourceZero}
	}
	return Result{Vector: vecs[0], Source: domain.EmbeddingSourceHash}
}

// Embed satisfies Embedder for callers that do not need sources.
func (f *FallbackEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := f.EmbedWithSources(ctx, texts)
	out := make([][]float32, len(results))
	for i, r := range results {
		out[i] = r.Vector
	}
	return out, nil
}

func (f *FallbackEmbedder) Name() string {
	if f.primary != nil {
		return f.primary.Name()
	}
	return f.hash.Name()
}
