package embedding

import (
	"context"
)

// ModelClient is the subset of the OpenAI-compatible client used for embeddings.
type ModelClient interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	EmbeddingModel() string
}

// ModelEmbedder embeds with a hosted model.
type ModelEmbedder struct {
	client ModelClient
}

func NewModelEmbedder(client ModelClient) *ModelEmbedder {
	return &ModelEmbedder{client: client}
}

func (m *ModelEmbedder) Name() string {
	return m.client.EmbeddingModel()
}

func (m *ModelEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.client.CreateEmbeddings(ctx, texts)
}
