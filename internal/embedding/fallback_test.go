package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/logging"
)

// MockEmbedder is a mock for Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Name() string {
	return "mock-model"
}

func unitVectors(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, domain.EmbeddingDimensions)
		out[i][i%domain.EmbeddingDimensions] = 1
	}
	return out
}

func TestFallbackEmbedder_PrimarySuccess(t *testing.T) {
	primary := new(MockEmbedder)
	f := NewFallbackEmbedder(primary, logging.Discard())

	ctx := context.Background()
	texts := []string{"a", "b"}
	primary.On("Embed", ctx, texts).Return(unitVectors(2), nil)

	results := f.EmbedWithSources(ctx, texts)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.EmbeddingSourceModel, r.Source)
	}
	assert.True(t, f.HasPrimary())
	assert.Equal(t, "mock-model", f.Name())
	primary.AssertExpectations(t)
}

func TestFallbackEmbedder_PrimaryFailsUsesHash(t *testing.T) {
	primary := new(MockEmbedder)
	f := NewFallbackEmbedder(primary, logging.Discard())

	ctx := context.Background()
	texts := []string{"a", "b"}
	primary.On("Embed", ctx, texts).Return(nil, errors.New("connection refused"))

	results := f.EmbedWithSources(ctx, texts)

	require.Len(t, results, 2)
	assert.Equal(t, domain.EmbeddingSourceHash, results[0].Source)
	assert.Equal(t, HashEmbedding("a"), results[0].Vector)
	assert.Equal(t, HashEmbedding("b"), results[1].Vector)
}

func TestFallbackEmbedder_NoPrimary(t *testing.T) {
	f := NewFallbackEmbedder(nil, logging.Discard())

	vecs, err := f.Embed(context.Background(), []string{"question"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{HashEmbedding("question")}, vecs)
	assert.False(t, f.HasPrimary())
	assert.Equal(t, "hash", f.Name())
}

type panickingEmbedder struct{}

func (panickingEmbedder) Embed(context.Context, []string) ([][]float32, error) { panic("boom") }
func (panickingEmbedder) Name() string                                        { return "panic" }

func TestFallbackEmbedder_ZeroVectorLastResort(t *testing.T) {
	f := NewFallbackEmbedder(nil, logging.Discard())
	f.hash = panickingEmbedder{}

	results := f.EmbedWithSources(context.Background(), []string{"a"})

	require.Len(t, results, 1)
	assert.Equal(t, domain.EmbeddingSourceZero, results[0].Source)
	assert.True(t, IsZero(results[0].Vector))
}

func TestFallbackEmbedder_Empty(t *testing.T) {
	f := NewFallbackEmbedder(nil, logging.Discard())
	assert.Nil(t, f.EmbedWithSources(context.Background(), nil))
}
