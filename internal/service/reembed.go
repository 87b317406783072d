package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/embedding"
	"github.com/hrplatform/docingest/internal/telemetry"
)

// ReembedService upgrades hash and zero fallback vectors to model vectors.
type ReembedService struct {
	chunks ChunkRepository
	model  embedding.Embedder
	logger *slog.Logger
}

// NewReembedService takes the model embedder alone; falling back here would
// just rewrite the same hash vectors.
func NewReembedService(chunks ChunkRepository, model embedding.Embedder, logger *slog.Logger) *ReembedService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReembedService{chunks: chunks, model: model, logger: logger.With("component", "reembed")}
}

// ReembedDocument returns how many chunks were updated.
func (s *ReembedService) ReembedDocument(ctx context.Context, documentID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReembedService.ReembedDocument", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "reembed",
	})
	defer span.End()

	if s.model == nil {
		return 0, domain.ErrAIDisabled
	}

	chunks, err := s.chunks.ListFallbackByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to list fallback chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vecs, err := s.model.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("model embedding failed: %w", err)
	}
	if len(vecs) != len(chunks) {
		return 0, domain.WithDetail(domain.ErrEmbeddingCountMismatch,
			fmt.Sprintf("chunks=%d embeddings=%d", len(chunks), len(vecs)))
	}

	updates := make([]domain.ChunkEmbeddingUpdate, len(chunks))
	for i, c := range chunks {
		if len(vecs[i]) != domain.EmbeddingDimensions {
			return 0, fmt.Errorf("chunk %d: expected %d dimensions, got %d", c.ChunkIndex, domain.EmbeddingDimensions, len(vecs[i]))
		}
		updates[i] = domain.ChunkEmbeddingUpdate{
			ChunkID:   c.ID,
			Embedding: vecs[i],
			Source:    domain.EmbeddingSourceModel,
		}
	}

	if err := s.chunks.UpdateEmbeddings(ctx, updates); err != nil {
		return 0, fmt.Errorf("failed to update embeddings: %w", err)
	}

	s.logger.Info("document re-embedded", "document_id", documentID, "chunks", len(updates))
	return len(updates), nil
}
