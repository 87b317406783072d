// Package embedding turns chunk text into fixed-width vectors.
//
// The model embedder is preferred. When it fails the hash embedder is used,
// and the zero vector is the last resort, so ingestion never stalls on an
// unreachable model.
package embedding

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"math"

	"github.com/hrplatform/docingest/internal/domain"
)

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// HashEmbedder derives a deterministic vector from the SHA-256 of the text.
// It carries no semantics but lets keyword search and storage proceed.
type HashEmbedder struct{}

func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

func (HashEmbedder) Name() string {
	return "hash"
}

func (HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = HashEmbedding(t)
	}
	return out, nil
}

// HashEmbedding maps each SHA-256 digest byte to byte/255 and zero-pads to
// domain.EmbeddingDimensions.
func HashEmbedding(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, domain.EmbeddingDimensions)
	for i, b := range sum {
		vec[i] = float32(b) / 255
	}
	return vec
}

// ZeroVector is the final fallback when every embedder failed.
func ZeroVector() []float32 {
	return make([]float32, domain.EmbeddingDimensions)
}

// IsZero reports whether every component of v is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Reconcile makes len(vectors) equal len(texts). Missing vectors are filled
// with hash embeddings and extras are dropped. fixed reports whether a repair
// happened.
func Reconcile(texts []string, vectors [][]float32, logger *slog.Logger) ([][]float32, bool) {
	if len(vectors) == len(texts) {
		return vectors, false
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(domain.ErrEmbeddingCountMismatch.Message,
		"chunks", len(texts), "embeddings", len(vectors))

	if len(vectors) > len(texts) {
		return vectors[:len(texts)], true
	}

	out := make([][]float32, len(texts))
	copy(out, vectors)
	for i := len(vectors); i < len(texts); i++ {
		out[i] = HashEmbedding(texts[i])
	}
	return out, true
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
