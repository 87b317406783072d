package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModelClient struct {
	calls [][]string
}

func (s *stubModelClient) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	s.calls = append(s.calls, texts)
	return unitVectors(len(texts)), nil
}

func (s *stubModelClient) EmbeddingModel() string { return "text-embedding-3-small" }

func TestModelEmbedder(t *testing.T) {
	client := &stubModelClient{}
	m := NewModelEmbedder(client)

	vecs, err := m.Embed(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, "text-embedding-3-small", m.Name())
	assert.Equal(t, [][]string{{"a", "b"}}, client.calls)
}
