package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/embedding"
	"github.com/hrplatform/docingest/internal/extract"
	"github.com/hrplatform/docingest/internal/storage"
	"github.com/hrplatform/docingest/internal/telemetry"
)

// Ingestion step names, used as log and span attributes.
const (
	StepValidate  = "validate"
	StepRead      = "read"
	StepStore     = "store"
	StepExtract   = "extract"
	StepCheckText = "check_text"
	StepChunk     = "chunk"
	StepEmbed     = "embed"
	StepBuild     = "build_chunks"
	StepPersist   = "persist"
)

// ChunkEmbedder embeds texts and reports which embedder produced each vector.
// *embedding.FallbackEmbedder implements it.
type ChunkEmbedder interface {
	EmbedWithSources(ctx context.Context, texts []string) []embedding.Result
	HasPrimary() bool
}

type IngestionConfig struct {
	MaxUploadBytes int64
	MinTextChars   int
	Chunk          ChunkConfig
}

func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{
		MaxUploadBytes: 50 << 20,
		MinTextChars:   10,
		Chunk:          DefaultChunkConfig(),
	}
}

type UploadInput struct {
	CompanyID   string
	Filename    string
	ContentType string
	UploadedBy  string
	Body        io.Reader
}

// IngestionService turns an uploaded file into a stored document with embedded chunks.
type IngestionService struct {
	store     storage.FileStore
	extractor extract.TextExtractor
	embedder  ChunkEmbedder
	txRunner  TxRunner
	uuidGen   UUIDGenerator
	cfg       IngestionConfig
	logger    *slog.Logger
}

func NewIngestionService(
	store storage.FileStore,
	extractor extract.TextExtractor,
	embedder ChunkEmbedder,
	txRunner TxRunner,
	uuidGen UUIDGenerator,
	cfg IngestionConfig,
	logger *slog.Logger,
) *IngestionService {
	if logger == nil {
		logger = slog.Default()
	}
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	return &IngestionService{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		txRunner:  txRunner,
		uuidGen:   uuidGen,
		cfg:       cfg,
		logger:    logger.With("component", "ingestion"),
	}
}

// Upload runs the ingestion pipeline. Once the file is stored, any failure
// deletes it again, and the document with its chunks is written in a single
// transaction.
func (s *IngestionService) Upload(ctx context.Context, in UploadInput) (doc *domain.Document, err error) {
	started := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Upload", telemetry.SpanAttributes{
		CompanyID: in.CompanyID,
		Operation: "upload",
	})
	defer span.End()

	if in.CompanyID == "" {
		return nil, domain.WithDetail(domain.ErrMissingRequiredField, "company_id")
	}
	if in.Body == nil {
		return nil, domain.WithDetail(domain.ErrMissingRequiredField, "file")
	}

	filename := cleanFilename(in.Filename)
	log := s.logger.With("company_id", in.CompanyID, "filename", filename)
	attrs := telemetry.SpanAttributes{CompanyID: in.CompanyID}

	var fileType domain.FileType
	err = s.step(ctx, log, attrs, StepValidate, func(context.Context) error {
		if filename == "" {
			return domain.WithDetail(domain.ErrMissingRequiredField, "filename")
		}
		fileType = domain.FileTypeFromName(filename)
		if !fileType.IsAllowed() {
			return domain.WithDetail(domain.ErrUnsupportedFileType,
				fmt.Sprintf("%q; allowed: %s", string(fileType), strings.Join(domain.AllowedFileTypes(), ", ")))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.step(ctx, log, attrs, StepRead, func(context.Context) error {
		var readErr error
		data, readErr = io.ReadAll(io.LimitReader(in.Body, s.cfg.MaxUploadBytes+1))
		if readErr != nil {
			return fmt.Errorf("failed to read upload: %w", readErr)
		}
		if int64(len(data)) > s.cfg.MaxUploadBytes {
			return domain.WithDetail(domain.ErrFileTooLarge, fmt.Sprintf("maximum is %d bytes", s.cfg.MaxUploadBytes))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	uploadedBy := strings.TrimSpace(in.UploadedBy)
	if uploadedBy == "" {
		uploadedBy = domain.DefaultUploadedBy
	}

	docID := s.uuidGen.NewString()
	doc = &domain.Document{
		ID:          docID,
		CompanyID:   in.CompanyID,
		Filename:    filename,
		StorageKey:  domain.StorageKeyFor(in.CompanyID, docID, fileType),
		FileType:    fileType,
		ContentType: in.ContentType,
		SizeBytes:   int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		UploadedBy:  uploadedBy,
		CreatedAt:   time.Now().UTC(),
	}
	log = log.With("document_id", docID)
	attrs.DocumentID = docID

	err = s.step(ctx, log, attrs, StepStore, func(ctx context.Context) error {
		if _, saveErr := s.store.Save(ctx, doc.StorageKey, bytes.NewReader(data)); saveErr != nil {
			return domain.WithCause(domain.ErrStorageOperationFail, saveErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	defer func() {
		if err == nil {
			return
		}
		s.cleanup(ctx, log, doc.StorageKey)
		doc = nil
	}()

	var text string
	err = s.step(ctx, log, attrs, StepExtract, func(ctx context.Context) error {
		var extractErr error
		text, extractErr = s.extractor.Extract(ctx, fileType, data)
		return extractErr
	})
	if err != nil {
		return nil, err
	}

	err = s.step(ctx, log, attrs, StepCheckText, func(context.Context) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return domain.ErrEmptyText
		}
		if n := utf8.RuneCountInString(text); n < s.cfg.MinTextChars {
			return domain.WithDetail(domain.ErrTextTooShort,
				fmt.Sprintf("%d characters, minimum %d", n, s.cfg.MinTextChars))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var texts []string
	err = s.step(ctx, log, attrs, StepChunk, func(context.Context) error {
		chunks := ChunkText(text, s.cfg.Chunk)
		if len(chunks) == 0 {
			return domain.ErrNoChunks
		}
		for _, c := range chunks {
			if strings.TrimSpace(c) != "" {
				texts = append(texts, c)
			}
		}
		if len(texts) == 0 {
			return domain.ErrAllChunksEmpty
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var results []embedding.Result
	err = s.step(ctx, log, attrs, StepEmbed, func(ctx context.Context) error {
		results = s.embedder.EmbedWithSources(ctx, texts)
		if len(results) == 0 {
			return domain.ErrNoEmbeddings
		}
		results = reconcileResults(texts, results, log)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		records  []*domain.DocumentChunk
		fallback int
	)
	err = s.step(ctx, log, attrs, StepBuild, func(context.Context) error {
		records, fallback = s.buildChunks(doc, texts, results)
		if len(records) == 0 {
			return domain.ErrNoValidChunks
		}
		doc.ChunkCount = len(records)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.step(ctx, log, attrs, StepPersist, func(ctx context.Context) error {
		return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
			if err := repos.Documents().Create(ctx, doc); err != nil {
				return fmt.Errorf("failed to insert document: %w", err)
			}
			if err := repos.Chunks().InsertChunks(ctx, records); err != nil {
				return fmt.Errorf("failed to insert chunks: %w", err)
			}
			if fallback > 0 && s.embedder.HasPrimary() {
				job := domain.NewEmbeddingJob(s.uuidGen.NewString(), doc.ID,
					domain.EmbeddingJobStatusPending, 0, "", time.Now().UTC(), nil)
				if err := repos.EmbeddingJobs().Create(ctx, job); err != nil {
					return fmt.Errorf("failed to enqueue embedding job: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info("document ingested",
		"chunks", doc.ChunkCount,
		"fallback_chunks", fallback,
		"size_bytes", doc.SizeBytes,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return doc, nil
}

func (s *IngestionService) step(ctx context.Context, log *slog.Logger, attrs telemetry.SpanAttributes, name string, fn func(ctx context.Context) error) error {
	attrs.Step = name
	ctx, span := telemetry.StartSpan(ctx, "ingest."+name, attrs)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started).Milliseconds()

	if err != nil {
		span.Fail(err)
		log.Warn("ingestion step failed", "step", name, "elapsed_ms", elapsed, "error", err)
		return err
	}
	log.Debug("ingestion step completed", "step", name, "elapsed_ms", elapsed)
	return nil
}

func (s *IngestionService) cleanup(ctx context.Context, log *slog.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.store.Delete(ctx, key); err != nil {
		log.Error("failed to delete stored file after ingestion error", "storage_key", key, "error", err)
		return
	}
	log.Info("deleted stored file after ingestion error", "storage_key", key)
}

// buildChunks pairs texts with vectors. A missing vector gets the hash
// fallback. It returns the records and how many did not come from the model.
func (s *IngestionService) buildChunks(doc *domain.Document, texts []string, results []embedding.Result) ([]*domain.DocumentChunk, int) {
	records := make([]*domain.DocumentChunk, 0, len(texts))
	fallback := 0
	for i, text := range texts {
		res := results[i]
		if len(res.Vector) != domain.EmbeddingDimensions {
			res = embedding.Result{Vector: embedding.HashEmbedding(text), Source: domain.EmbeddingSourceHash}
		}
		if res.Source != domain.EmbeddingSourceModel {
			fallback++
		}
		records = append(records, &domain.DocumentChunk{
			ID:              s.uuidGen.NewString(),
			DocumentID:      doc.ID,
			CompanyID:       doc.CompanyID,
			ChunkIndex:      len(records),
			Text:            text,
			Embedding:       res.Vector,
			EmbeddingSource: res.Source,
			CreatedAt:       doc.CreatedAt,
		})
	}
	return records, fallback
}

// reconcileResults aligns results with texts. Extra results are dropped and
// missing ones are filled with hash embeddings.
func reconcileResults(texts []string, results []embedding.Result, log *slog.Logger) []embedding.Result {
	vectors := make([][]float32, len(results))
	for i, r := range results {
		vectors[i] = r.Vector
	}
	fixed, repaired := embedding.Reconcile(texts, vectors, log)
	if !repaired {
		return results
	}

	out := make([]embedding.Result, len(texts))
	for i := range texts {
		if i < len(results) {
			out[i] = results[i]
			continue
		}
		out[i] = embedding.Result{Vector: fixed[i], Source: domain.EmbeddingSourceHash}
	}
	return out
}

// cleanFilename strips any client-supplied directories.
func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
