package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/embedding"
	"github.com/hrplatform/docingest/internal/extract"
	"github.com/hrplatform/docingest/internal/logging"
	"github.com/hrplatform/docingest/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const handbookText = "Employees accrue vacation days every month. Requests go to the line manager " +
	"at least two weeks ahead. Unused days carry over until the end of March of the next year."

type fakeEmbedder struct {
	fn    func(texts []string) ([][]float32, error)
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	return f.fn(texts)
}

func (f *fakeEmbedder) Name() string { return "fake-model" }

func modelEmbedder() *fakeEmbedder {
	return &fakeEmbedder{fn: func(texts []string) ([][]float32, error) {
		return unitVectors(len(texts)), nil
	}}
}

type ingestionFixture struct {
	svc    *IngestionService
	store  *storage.LocalStore
	docs   *MockDocumentRepository
	chunks *MockChunkRepository
	jobs   *MockEmbeddingJobRepository
	tx     *testTxRunner
}

func newIngestionFixture(t *testing.T, primary embedding.Embedder) *ingestionFixture {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	f := &ingestionFixture{
		store:  store,
		docs:   new(MockDocumentRepository),
		chunks: new(MockChunkRepository),
		jobs:   new(MockEmbeddingJobRepository),
	}
	f.tx = &testTxRunner{repos: &testTxRepos{documents: f.docs, chunks: f.chunks, embeddingJobs: f.jobs}}

	cfg := IngestionConfig{
		MaxUploadBytes: 1024,
		MinTextChars:   10,
		Chunk:          ChunkConfig{Size: 60, Overlap: 10, Lookahead: 15},
	}
	fallback := embedding.NewFallbackEmbedder(primary, logging.Discard())
	f.svc = NewIngestionService(store, extract.New(), fallback, f.tx, nil, cfg, logging.Discard())
	return f
}

func (f *ingestionFixture) expectPersist() {
	f.docs.On("Create", mock.Anything, mock.AnythingOfType("*domain.Document")).Return(nil)
	f.chunks.On("InsertChunks", mock.Anything, mock.Anything).Return(nil)
}

func (f *ingestionFixture) storedFiles(t *testing.T, doc *domain.Document) bool {
	ok, err := f.store.Exists(context.Background(), doc.StorageKey)
	require.NoError(t, err)
	return ok
}

func assertStoreEmpty(t *testing.T, store *storage.LocalStore) {
	t.Helper()
	var files []string
	err := filepath.WalkDir(store.Root(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func upload(name, body string) UploadInput {
	return UploadInput{
		CompanyID:   "company-1",
		Filename:    name,
		ContentType: "text/plain",
		Body:        strings.NewReader(body),
	}
}

func insertedChunks(t *testing.T, m *MockChunkRepository) []*domain.DocumentChunk {
	t.Helper()
	for _, call := range m.Calls {
		if call.Method == "InsertChunks" {
			return call.Arguments.Get(1).([]*domain.DocumentChunk)
		}
	}
	t.Fatal("InsertChunks was not called")
	return nil
}

func TestIngestionService_Upload_Success(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture(t, modelEmbedder())
	f.expectPersist()

	doc, err := f.svc.Upload(ctx, upload("handbook.txt", handbookText))
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "company-1", doc.CompanyID)
	assert.Equal(t, "handbook.txt", doc.Filename)
	assert.Equal(t, domain.FileTypeText, doc.FileType)
	assert.Equal(t, domain.DefaultUploadedBy, doc.UploadedBy)
	assert.Equal(t, int64(len(handbookText)), doc.SizeBytes)
	assert.Len(t, doc.SHA256, 64)
	assert.Equal(t, domain.StorageKeyFor("company-1", doc.ID, domain.FileTypeText), doc.StorageKey)
	assert.True(t, f.storedFiles(t, doc))
	assert.True(t, f.tx.called)

	chunks := insertedChunks(t, f.chunks)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, len(chunks), doc.ChunkCount)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.Equal(t, "company-1", c.CompanyID)
		assert.Equal(t, domain.EmbeddingSourceModel, c.EmbeddingSource)
		assert.NoError(t, domain.ValidateDocumentChunk(c))
	}
	f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestionService_Upload_PrimaryFailureQueuesReembed(t *testing.T) {
	ctx := context.Background()
	primary := &fakeEmbedder{fn: func([]string) ([][]float32, error) {
		return nil, errors.New("model unreachable")
	}}
	f := newIngestionFixture(t, primary)
	f.expectPersist()
	f.jobs.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.EmbeddingJob) bool {
		return j.Status == domain.EmbeddingJobStatusPending && j.DocumentID != ""
	})).Return(nil)

	doc, err := f.svc.Upload(ctx, upload("handbook.md", handbookText))
	require.NoError(t, err)

	for _, c := range insertedChunks(t, f.chunks) {
		assert.Equal(t, domain.EmbeddingSourceHash, c.EmbeddingSource)
		assert.Equal(t, embedding.HashEmbedding(c.Text), c.Embedding)
	}
	f.jobs.AssertNumberOfCalls(t, "Create", 1)
	assert.Equal(t, doc.ID, f.jobs.Calls[0].Arguments.Get(1).(*domain.EmbeddingJob).DocumentID)
}

func TestIngestionService_Upload_NoPrimaryDoesNotQueue(t *testing.T) {
	f := newIngestionFixture(t, nil)
	f.expectPersist()

	_, err := f.svc.Upload(context.Background(), upload("handbook.csv", handbookText))
	require.NoError(t, err)

	for _, c := range insertedChunks(t, f.chunks) {
		assert.Equal(t, domain.EmbeddingSourceHash, c.EmbeddingSource)
	}
	f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestionService_Upload_ReconcilesShortEmbeddingBatch(t *testing.T) {
	primary := &fakeEmbedder{fn: func(texts []string) ([][]float32, error) {
		return unitVectors(len(texts) - 1), nil
	}}
	f := newIngestionFixture(t, primary)
	f.expectPersist()
	f.jobs.On("Create", mock.Anything, mock.Anything).Return(nil)

	doc, err := f.svc.Upload(context.Background(), upload("handbook.txt", handbookText))
	require.NoError(t, err)

	chunks := insertedChunks(t, f.chunks)
	require.Len(t, chunks, doc.ChunkCount)
	last := chunks[len(chunks)-1]
	assert.Equal(t, domain.EmbeddingSourceHash, last.EmbeddingSource)
	assert.Equal(t, domain.EmbeddingSourceModel, chunks[0].EmbeddingSource)
	f.jobs.AssertNumberOfCalls(t, "Create", 1)
}

func TestIngestionService_Upload_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   UploadInput
		wantErr error
	}{
		{"unsupported type", upload("payroll.exe", handbookText), domain.ErrUnsupportedFileType},
		{"no extension", upload("README", handbookText), domain.ErrUnsupportedFileType},
		{"missing filename", upload("  ", handbookText), domain.ErrMissingRequiredField},
		{"too large", upload("big.txt", strings.Repeat("a ", 600)), domain.ErrFileTooLarge},
		{"missing company", UploadInput{Filename: "a.txt", Body: strings.NewReader("x")}, domain.ErrMissingRequiredField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestionFixture(t, modelEmbedder())

			doc, err := f.svc.Upload(context.Background(), tt.input)
			assert.Nil(t, doc)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, f.tx.called)
		})
	}
}

func TestIngestionService_Upload_UnsupportedTypeListsAllowed(t *testing.T) {
	f := newIngestionFixture(t, nil)
	_, err := f.svc.Upload(context.Background(), upload("photo.png", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".pdf")
	assert.Contains(t, err.Error(), ".docx")
}

func TestIngestionService_Upload_TextErrorsDeleteStoredFile(t *testing.T) {
	brokenDocx := func() string {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, _ := zw.Create("word/other.xml")
		_, _ = w.Write([]byte("<x/>"))
		_ = zw.Close()
		return buf.String()
	}

	tests := []struct {
		name    string
		input   UploadInput
		wantErr error
	}{
		{"empty text", upload("empty.txt", "   \n\t "), domain.ErrEmptyText},
		{"short text", upload("short.txt", "too short"), domain.ErrTextTooShort},
		{"extraction failure", upload("broken.docx", "not a zip archive"), domain.ErrExtractionFailed},
		{"docx without body", upload("nobody.docx", brokenDocx()), domain.ErrExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestionFixture(t, modelEmbedder())

			doc, err := f.svc.Upload(context.Background(), tt.input)
			assert.Nil(t, doc)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, f.tx.called)

			assertStoreEmpty(t, f.store)
		})
	}
}

func TestIngestionService_Upload_PersistFailureRollsBackAndCleansUp(t *testing.T) {
	f := newIngestionFixture(t, modelEmbedder())
	dbErr := errors.New("connection reset")
	f.docs.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.chunks.On("InsertChunks", mock.Anything, mock.Anything).Return(dbErr)

	doc, err := f.svc.Upload(context.Background(), upload("handbook.txt", handbookText))
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, dbErr)
	assert.True(t, f.tx.called)
	assertStoreEmpty(t, f.store)
}

func TestIngestionService_Upload_SanitizesFilenameAndUploader(t *testing.T) {
	f := newIngestionFixture(t, modelEmbedder())
	f.expectPersist()

	in := upload(`..\..\secret\handbook.txt`, handbookText)
	in.UploadedBy = "  hr-admin "
	doc, err := f.svc.Upload(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "handbook.txt", doc.Filename)
	assert.Equal(t, "hr-admin", doc.UploadedBy)
}

func TestIngestionService_Upload_UniqueStorageKeys(t *testing.T) {
	f := newIngestionFixture(t, modelEmbedder())
	f.expectPersist()

	first, err := f.svc.Upload(context.Background(), upload("handbook.txt", handbookText))
	require.NoError(t, err)
	second, err := f.svc.Upload(context.Background(), upload("handbook.txt", handbookText+" Updated."))
	require.NoError(t, err)

	assert.NotEqual(t, first.StorageKey, second.StorageKey)
	assert.True(t, f.storedFiles(t, first))
	assert.True(t, f.storedFiles(t, second))
}

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "a.pdf", cleanFilename("a.pdf"))
	assert.Equal(t, "a.pdf", cleanFilename("/tmp/x/a.pdf"))
	assert.Equal(t, "a.pdf", cleanFilename(`C:\Users\x\a.pdf`))
	assert.Equal(t, "", cleanFilename(".."))
	assert.Equal(t, "", cleanFilename(""))
}

func TestReconcileResults(t *testing.T) {
	texts := []string{"a", "b", "c"}

	t.Run("aligned", func(t *testing.T) {
		in := []embedding.Result{{Vector: unitVector(0)}, {Vector: unitVector(1)}, {Vector: unitVector(2)}}
		assert.Equal(t, in, reconcileResults(texts, in, logging.Discard()))
	})

	t.Run("too many", func(t *testing.T) {
		in := make([]embedding.Result, 5)
		assert.Len(t, reconcileResults(texts, in, logging.Discard()), 3)
	})

	t.Run("too few", func(t *testing.T) {
		in := []embedding.Result{{Vector: unitVector(0), Source: domain.EmbeddingSourceModel}}
		out := reconcileResults(texts, in, logging.Discard())
		require.Len(t, out, 3)
		assert.Equal(t, domain.EmbeddingSourceModel, out[0].Source)
		assert.Equal(t, domain.EmbeddingSourceHash, out[2].Source)
		assert.Equal(t, embedding.HashEmbedding("c"), out[2].Vector)
	})
}
