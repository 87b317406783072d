package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/storage"
)

// DocumentRepository defines persistence for document metadata.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, companyID, id string) (*domain.Document, error)
	GetByIDs(ctx context.Context, companyID string, ids []string) ([]*domain.Document, error)
	ListByCompany(ctx context.Context, companyID string) ([]*domain.Document, error)
	Delete(ctx context.Context, companyID, id string) error
}

// ChunkRepository defines persistence and retrieval of document chunks.
type ChunkRepository interface {
	InsertChunks(ctx context.Context, chunks []*domain.DocumentChunk) error
	ListByDocument(ctx context.Context, companyID, documentID string) ([]*domain.DocumentChunk, error)
	ListFallbackByDocument(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error)
	SearchSemantic(ctx context.Context, companyID string, vec []float32, documentIDs []string, limit int) ([]*domain.ChunkMatch, error)
	SearchKeyword(ctx context.Context, companyID string, words []string, documentIDs []string, limit int) ([]*domain.ChunkMatch, error)
	UpdateEmbeddings(ctx context.Context, updates []domain.ChunkEmbeddingUpdate) error
}

// EmbeddingJobRepository enqueues re-embedding work.
type EmbeddingJobRepository interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
}

// DownloadURLGenerator is implemented by stores that can presign object URLs.
type DownloadURLGenerator interface {
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// DocumentService reads and deletes a company's documents.
type DocumentService struct {
	docs   DocumentRepository
	chunks ChunkRepository
	store  storage.FileStore
	logger *slog.Logger
}

func NewDocumentService(docs DocumentRepository, chunks ChunkRepository, store storage.FileStore, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		docs:   docs,
		chunks: chunks,
		store:  store,
		logger: logger.With("component", "documents"),
	}
}

func (s *DocumentService) List(ctx context.Context, companyID string) ([]*domain.Document, error) {
	docs, err := s.docs.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if docs == nil {
		docs = []*domain.Document{}
	}
	return docs, nil
}

// Get returns ErrDocumentNotFound for documents of other companies.
func (s *DocumentService) Get(ctx context.Context, companyID, id string) (*domain.Document, error) {
	return s.docs.GetByID(ctx, companyID, id)
}

// Chunks returns the document's chunks ordered by index.
func (s *DocumentService) Chunks(ctx context.Context, companyID, id string) ([]*domain.DocumentChunk, error) {
	if _, err := s.docs.GetByID(ctx, companyID, id); err != nil {
		return nil, err
	}
	chunks, err := s.chunks.ListByDocument(ctx, companyID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	if chunks == nil {
		chunks = []*domain.DocumentChunk{}
	}
	return chunks, nil
}

// Open streams the stored original file. The caller closes the reader.
func (s *DocumentService) Open(ctx context.Context, companyID, id string) (*domain.Document, io.ReadCloser, error) {
	doc, err := s.docs.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// DownloadURL presigns a URL for the stored file. It returns "" when the
// store cannot presign.
func (s *DocumentService) DownloadURL(ctx context.Context, companyID, id string) (string, error) {
	presigner, ok := s.store.(DownloadURLGenerator)
	if !ok {
		return "", nil
	}
	doc, err := s.docs.GetByID(ctx, companyID, id)
	if err != nil {
		return "", err
	}
	return presigner.GenerateDownloadURL(ctx, doc.StorageKey)
}

// Delete removes the document rows, then the stored file. A missing file is
// not an error.
func (s *DocumentService) Delete(ctx context.Context, companyID, id string) error {
	doc, err := s.docs.GetByID(ctx, companyID, id)
	if err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, companyID, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, domain.ErrObjectNotFound) {
		// The rows are gone; an orphaned file is logged rather than failing the request.
		s.logger.Error("failed to delete stored file",
			"document_id", id, "company_id", companyID, "storage_key", doc.StorageKey, "error", err)
	}

	s.logger.Info("document deleted", "document_id", id, "company_id", companyID)
	return nil
}
