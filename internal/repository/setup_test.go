//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func setupPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc)
	t.Cleanup(pool.Close)
	return pool
}

func createCompany(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) *domain.Company {
	t.Helper()
	c := domain.NewCompany(uuid.NewString(), name, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, NewCompanyRepository(pool).Create(ctx, c))
	return c
}

func createDocument(ctx context.Context, t *testing.T, pool *pgxpool.Pool, companyID, filename string, createdAt time.Time) *domain.Document {
	t.Helper()
	id := uuid.NewString()
	d := &domain.Document{
		ID:          id,
		CompanyID:   companyID,
		Filename:    filename,
		StorageKey:  domain.StorageKeyFor(companyID, id, domain.FileTypeFromName(filename)),
		FileType:    domain.FileTypeFromName(filename),
		ContentType: "text/plain",
		SizeBytes:   42,
		SHA256:      "abc123",
		UploadedBy:  domain.DefaultUploadedBy,
		CreatedAt:   createdAt.UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, NewDocumentRepository(pool).Create(ctx, d))
	return d
}

// unitVector returns a 384-dim vector with 1 at position i.
func unitVector(i int) []float32 {
	v := make([]float32, domain.EmbeddingDimensions)
	v[i] = 1
	return v
}

func newChunk(doc *domain.Document, index int, text string, vec []float32, source domain.EmbeddingSource) *domain.DocumentChunk {
	return &domain.DocumentChunk{
		ID:              uuid.NewString(),
		DocumentID:      doc.ID,
		CompanyID:       doc.CompanyID,
		ChunkIndex:      index,
		Text:            text,
		Embedding:       vec,
		EmbeddingSource: source,
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}
}
