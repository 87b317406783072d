//go:build integration

package repository

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewDocumentRepository(pool)

	acme := createCompany(ctx, t, pool, "Acme")
	globex := createCompany(ctx, t, pool, "Globex")

	now := time.Now()
	older := createDocument(ctx, t, pool, acme.ID, "handbook.pdf", now.Add(-time.Hour))
	newer := createDocument(ctx, t, pool, acme.ID, "policy.docx", now)
	other := createDocument(ctx, t, pool, globex.ID, "secret.txt", now)

	t.Run("get scoped by company", func(t *testing.T) {
		got, err := repo.GetByID(ctx, acme.ID, older.ID)
		require.NoError(t, err)
		assert.Equal(t, "handbook.pdf", got.Filename)
		assert.Equal(t, domain.FileTypePDF, got.FileType)
		assert.Equal(t, older.StorageKey, got.StorageKey)

		_, err = repo.GetByID(ctx, acme.ID, other.ID)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		docs, err := repo.ListByCompany(ctx, acme.ID)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, newer.ID, docs[0].ID)
		assert.Equal(t, older.ID, docs[1].ID)
	})

	t.Run("get by ids skips foreign documents", func(t *testing.T) {
		docs, err := repo.GetByIDs(ctx, acme.ID, []string{older.ID, other.ID, uuid.NewString()})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, older.ID, docs[0].ID)
	})

	t.Run("delete cascades chunks", func(t *testing.T) {
		chunks := NewChunkRepository(pool)
		require.NoError(t, chunks.InsertChunks(ctx, []*domain.DocumentChunk{
			newChunk(newer, 0, "leave policy", unitVector(0), domain.EmbeddingSourceModel),
		}))

		assert.ErrorIs(t, repo.Delete(ctx, globex.ID, newer.ID), domain.ErrDocumentNotFound)
		require.NoError(t, repo.Delete(ctx, acme.ID, newer.ID))

		left, err := chunks.ListByDocument(ctx, acme.ID, newer.ID)
		require.NoError(t, err)
		assert.Empty(t, left)
		assert.ErrorIs(t, repo.Delete(ctx, acme.ID, newer.ID), domain.ErrDocumentNotFound)
	})
}

func TestChunkRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewChunkRepository(pool)

	acme := createCompany(ctx, t, pool, "Acme")
	globex := createCompany(ctx, t, pool, "Globex")
	handbook := createDocument(ctx, t, pool, acme.ID, "handbook.pdf", time.Now())
	policy := createDocument(ctx, t, pool, acme.ID, "policy.txt", time.Now())
	foreign := createDocument(ctx, t, pool, globex.ID, "other.txt", time.Now())

	require.NoError(t, repo.InsertChunks(ctx, []*domain.DocumentChunk{
		newChunk(handbook, 1, "Vacation requests need 100% approval", unitVector(1), domain.EmbeddingSourceHash),
		newChunk(handbook, 0, "Employees accrue vacation days monthly", unitVector(0), domain.EmbeddingSourceModel),
		newChunk(policy, 0, "Remote work is allowed on Fridays", unitVector(2), domain.EmbeddingSourceModel),
		newChunk(foreign, 0, "vacation for another tenant", unitVector(0), domain.EmbeddingSourceModel),
	}))

	t.Run("list by document is ordered", func(t *testing.T) {
		chunks, err := repo.ListByDocument(ctx, acme.ID, handbook.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 0, chunks[0].ChunkIndex)
		assert.Equal(t, 1, chunks[1].ChunkIndex)
		assert.Equal(t, domain.EmbeddingSourceHash, chunks[1].EmbeddingSource)
		assert.Nil(t, chunks[0].Embedding)

		none, err := repo.ListByDocument(ctx, globex.ID, handbook.ID)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("duplicate index is rejected", func(t *testing.T) {
		err := repo.InsertChunks(ctx, []*domain.DocumentChunk{
			newChunk(policy, 0, "again", unitVector(3), domain.EmbeddingSourceModel),
		})
		assert.Error(t, err)
	})

	t.Run("semantic search", func(t *testing.T) {
		matches, err := repo.SearchSemantic(ctx, acme.ID, unitVector(0), nil, 10)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, handbook.ID, matches[0].DocumentID)
		assert.Equal(t, 0, matches[0].ChunkIndex)
		assert.Equal(t, "handbook.pdf", matches[0].Filename)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
		assert.InDelta(t, 0.0, matches[1].Similarity, 1e-6)
	})

	t.Run("semantic search with document filter", func(t *testing.T) {
		matches, err := repo.SearchSemantic(ctx, acme.ID, unitVector(0), []string{policy.ID}, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, policy.ID, matches[0].DocumentID)
	})

	t.Run("semantic search with zero vector", func(t *testing.T) {
		matches, err := repo.SearchSemantic(ctx, acme.ID, make([]float32, domain.EmbeddingDimensions), nil, 10)
		require.NoError(t, err)
		for _, m := range matches {
			assert.True(t, math.IsNaN(m.Similarity) || m.Similarity == 0)
		}
	})

	t.Run("keyword search", func(t *testing.T) {
		matches, err := repo.SearchKeyword(ctx, acme.ID, []string{"VACATION"}, nil, 10)
		require.NoError(t, err)
		assert.Len(t, matches, 2)
		for _, m := range matches {
			assert.Equal(t, handbook.ID, m.DocumentID)
			assert.Zero(t, m.Similarity)
		}
	})

	t.Run("keyword search escapes wildcards", func(t *testing.T) {
		matches, err := repo.SearchKeyword(ctx, acme.ID, []string{"100%"}, nil, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 1, matches[0].ChunkIndex)

		matches, err = repo.SearchKeyword(ctx, acme.ID, []string{"_"}, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("keyword search without words", func(t *testing.T) {
		matches, err := repo.SearchKeyword(ctx, acme.ID, []string{""}, nil, 10)
		require.NoError(t, err)
		assert.Nil(t, matches)
	})

	t.Run("fallback chunks and update", func(t *testing.T) {
		fallback, err := repo.ListFallbackByDocument(ctx, handbook.ID)
		require.NoError(t, err)
		require.Len(t, fallback, 1)
		assert.Equal(t, 1, fallback[0].ChunkIndex)

		require.NoError(t, repo.UpdateEmbeddings(ctx, []domain.ChunkEmbeddingUpdate{
			{ChunkID: fallback[0].ID, Embedding: unitVector(5), Source: domain.EmbeddingSourceModel},
		}))

		fallback, err = repo.ListFallbackByDocument(ctx, handbook.ID)
		require.NoError(t, err)
		assert.Empty(t, fallback)

		matches, err := repo.SearchSemantic(ctx, acme.ID, unitVector(5), []string{handbook.ID}, 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 1, matches[0].ChunkIndex)
	})
}

func TestTxRunner(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	runner := NewTxRunner(pool)
	acme := createCompany(ctx, t, pool, "Acme")

	newDoc := func() *domain.Document {
		id := uuid.NewString()
		return &domain.Document{
			ID: id, CompanyID: acme.ID, Filename: "a.txt",
			StorageKey: domain.StorageKeyFor(acme.ID, id, domain.FileTypeText),
			FileType:   domain.FileTypeText, SizeBytes: 3, SHA256: "x",
			UploadedBy: domain.DefaultUploadedBy, ChunkCount: 1,
			CreatedAt: time.Now().UTC(),
		}
	}

	t.Run("commit", func(t *testing.T) {
		doc := newDoc()
		err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
			if err := repos.Documents().Create(ctx, doc); err != nil {
				return err
			}
			if err := repos.Chunks().InsertChunks(ctx, []*domain.DocumentChunk{
				newChunk(doc, 0, "text", unitVector(0), domain.EmbeddingSourceHash),
			}); err != nil {
				return err
			}
			return repos.EmbeddingJobs().Create(ctx, domain.NewEmbeddingJob(
				uuid.NewString(), doc.ID, domain.EmbeddingJobStatusPending, 0, "", time.Now().UTC(), nil))
		})
		require.NoError(t, err)

		_, err = NewDocumentRepository(pool).GetByID(ctx, acme.ID, doc.ID)
		assert.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		doc := newDoc()
		boom := errors.New("boom")
		err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
			require.NoError(t, repos.Documents().Create(ctx, doc))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = NewDocumentRepository(pool).GetByID(ctx, acme.ID, doc.ID)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}
