package domain

import (
	"fmt"
	"strings"
	"time"
)

// EmbeddingDimensions is the width of every stored vector. The document_chunks
// column is vector(384); the model and hash embedders both produce this size.
const EmbeddingDimensions = 384

// EmbeddingSource records which embedder produced a chunk's vector.
type EmbeddingSource string

const (
	EmbeddingSourceModel EmbeddingSource = "model"
	EmbeddingSourceHash  EmbeddingSource = "hash"
	EmbeddingSourceZero  EmbeddingSource = "zero"
)

// DocumentChunk is a text segment of a document together with its embedding.
type DocumentChunk struct {
	ID              string
	DocumentID      string
	CompanyID       string
	ChunkIndex      int
	Text            string
	Embedding       []float32
	EmbeddingSource EmbeddingSource
	CreatedAt       time.Time
}

// ValidateDocumentChunk validates a DocumentChunk instance
func ValidateDocumentChunk(c *DocumentChunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.ChunkIndex < 0 {
		return fmt.Errorf("chunk ChunkIndex cannot be negative")
	}

	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("chunk Text is required")
	}

	if len(c.Embedding) != EmbeddingDimensions {
		return fmt.Errorf("chunk Embedding must have %d dimensions, got %d", EmbeddingDimensions, len(c.Embedding))
	}

	switch c.EmbeddingSource {
	case EmbeddingSourceModel, EmbeddingSourceHash, EmbeddingSourceZero:
	default:
		return fmt.Errorf("chunk EmbeddingSource is invalid: %s", c.EmbeddingSource)
	}

	return nil
}

// ChunkMatch is a chunk returned by retrieval together with its document's
// filename. Similarity is 1 - cosine distance for semantic matches and 0 for
// keyword-only matches.
type ChunkMatch struct {
	DocumentChunk
	Filename   string
	Similarity float64
}

// ChunkEmbeddingUpdate replaces the vector of one stored chunk.
type ChunkEmbeddingUpdate struct {
	ChunkID   string
	Embedding []float32
	Source    EmbeddingSource
}
