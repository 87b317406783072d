package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hrplatform/docingest/internal/api"
	"github.com/hrplatform/docingest/internal/api/middleware"
	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/service"
	"github.com/hrplatform/docingest/internal/telemetry"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 10 << 20

type DocumentService interface {
	List(ctx context.Context, companyID string) ([]*domain.Document, error)
	Get(ctx context.Context, companyID, id string) (*domain.Document, error)
	Chunks(ctx context.Context, companyID, id string) ([]*domain.DocumentChunk, error)
	Open(ctx context.Context, companyID, id string) (*domain.Document, io.ReadCloser, error)
	DownloadURL(ctx context.Context, companyID, id string) (string, error)
	Delete(ctx context.Context, companyID, id string) error
}

type IngestionService interface {
	Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error)
}

type QueryService interface {
	Ask(ctx context.Context, input service.QueryInput) (*service.QueryOutput, error)
}

type DocumentHandler struct {
	docs   DocumentService
	ingest IngestionService
	query  QueryService
	logger *slog.Logger
}

func NewDocumentHandler(docs DocumentService, ingest IngestionService, query QueryService, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{docs: docs, ingest: ingest, query: query, logger: logger}
}

type DocumentResponse struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
	UploadedBy  string `json:"uploaded_by"`
	ChunkCount  int    `json:"chunk_count"`
	CreatedAt   string `json:"created_at"`
	DownloadURL string `json:"download_url,omitempty"`
}

type ChunkResponse struct {
	ID              string `json:"id"`
	ChunkIndex      int    `json:"chunk_index"`
	Text            string `json:"text"`
	EmbeddingSource string `json:"embedding_source"`
}

type QueryRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:          d.ID,
		CompanyID:   d.CompanyID,
		Filename:    d.Filename,
		FileType:    string(d.FileType),
		ContentType: d.ContentType,
		SizeBytes:   d.SizeBytes,
		SHA256:      d.SHA256,
		UploadedBy:  d.UploadedBy,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func chunkToResponse(c *domain.DocumentChunk) ChunkResponse {
	return ChunkResponse{
		ID:              c.ID,
		ChunkIndex:      c.ChunkIndex,
		Text:            c.Text,
		EmbeddingSource: string(c.EmbeddingSource),
	}
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	if companyID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, domain.ErrFileTooLarge.Message)
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	telemetry.AddBreadcrumb(r.Context(), "upload", header.Filename)

	doc, err := h.ingest.Upload(r.Context(), service.UploadInput{
		CompanyID:   companyID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		UploadedBy:  strings.TrimSpace(r.FormValue("uploaded_by")),
		Body:        file,
	})
	if err != nil {
		if api.DomainErrorToHTTP(err) >= http.StatusInternalServerError {
			telemetry.CaptureError(r.Context(), err)
			middleware.Logger(r.Context(), h.logger).Error("upload failed",
				"filename", header.Filename,
				"error", err,
			)
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	if companyID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	docs, err := h.docs.List(r.Context(), companyID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*DocumentResponse, len(docs))
	for i, d := range docs {
		resp[i] = documentToResponse(d)
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	if companyID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.docs.Get(r.Context(), companyID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := documentToResponse(doc)
	url, err := h.docs.DownloadURL(r.Context(), companyID, id)
	if err != nil {
		// The document itself is still served; only the link is missing.
		middleware.Logger(r.Context(), h.logger).Warn("failed to presign download url", "document_id", id, "error", err)
	}
	resp.DownloadURL = url

	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	if companyID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	chunks, err := h.docs.Chunks(r.Context(), companyID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]ChunkResponse, len(chunks))
	for i, c := range chunks {
		resp[i] = chunkToResponse(c)
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	if companyID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, body, err := h.docs.Open(r.Context(), companyID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	defer body.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	if doc.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		middleware.Logger(r.Context(), h.logger).Warn("download interrupted", "document_id", id, "error", err)
	}
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	if companyID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.docs.Delete(r.Context(), companyID, id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Message(w, http.StatusOK, "Document deleted successfully")
}

func (h *DocumentHandler) Query(w http.ResponseWriter, r *http.Request) {
	companyID := middleware.GetCompanyID(r.Context())
	if companyID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.TopK < 0 {
		api.Error(w, http.StatusBadRequest, "top_k must be positive")
		return
	}

	out, err := h.query.Ask(r.Context(), service.QueryInput{
		CompanyID:   companyID,
		Question:    req.Question,
		DocumentIDs: req.DocumentIDs,
		TopK:        req.TopK,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, out)
}
