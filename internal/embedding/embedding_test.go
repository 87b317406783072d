package embedding

import (
	"crypto/sha256"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/logging"
)

func TestHashEmbedding(t *testing.T) {
	vec := HashEmbedding("Parental leave is 16 weeks.")
	require.Len(t, vec, domain.EmbeddingDimensions)

	sum := sha256.Sum256([]byte("Parental leave is 16 weeks."))
	for i, b := range sum {
		assert.InDelta(t, float64(b)/255, vec[i], 1e-6)
	}
	for _, x := range vec[32:] {
		assert.Zero(t, x)
	}

	assert.Equal(t, vec, HashEmbedding("Parental leave is 16 weeks."), "deterministic")
	assert.NotEqual(t, vec, HashEmbedding("Parental leave is 12 weeks."))
}

func TestZeroVector(t *testing.T) {
	v := ZeroVector()
	assert.Len(t, v, domain.EmbeddingDimensions)
	assert.True(t, IsZero(v))
	assert.False(t, IsZero(HashEmbedding("x")))
}

func TestReconcile(t *testing.T) {
	logger := logging.Discard()
	texts := []string{"a", "b", "c"}

	t.Run("equal counts", func(t *testing.T) {
		vecs := [][]float32{{1}, {2}, {3}}
		out, fixed := Reconcile(texts, vecs, logger)
		assert.False(t, fixed)
		assert.Equal(t, vecs, out)
	})

	t.Run("pads with hash embeddings", func(t *testing.T) {
		vecs := [][]float32{{1}}
		out, fixed := Reconcile(texts, vecs, logger)
		assert.True(t, fixed)
		require.Len(t, out, 3)
		assert.Equal(t, []float32{1}, out[0])
		assert.Equal(t, HashEmbedding("b"), out[1])
		assert.Equal(t, HashEmbedding("c"), out[2])
	})

	t.Run("truncates extras", func(t *testing.T) {
		vecs := [][]float32{{1}, {2}, {3}, {4}}
		out, fixed := Reconcile(texts, vecs, logger)
		assert.True(t, fixed)
		assert.Len(t, out, 3)
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, CosineSimilarity([]float32{1, 1}, []float32{1, 0}), 1e-9)

	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}
