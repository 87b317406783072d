package repository

import (
	"context"
	"strings"
	"time"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository persists document chunks and runs retrieval queries over them.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// InsertChunks writes all chunks in a single batch round trip.
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks []*domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(
			`INSERT INTO document_chunks
				(id, document_id, company_id, chunk_index, text, embedding, embedding_source, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.DocumentID, c.CompanyID, c.ChunkIndex, c.Text,
			pgvector.NewVector(c.Embedding), string(c.EmbeddingSource), createdAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// ListByDocument returns the chunks of a company's document ordered by index.
// Embeddings are not loaded.
func (r *ChunkRepository) ListByDocument(ctx context.Context, companyID, documentID string) ([]*domain.DocumentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, company_id, chunk_index, text, embedding_source, created_at
		 FROM document_chunks
		 WHERE document_id = $1 AND company_id = $2
		 ORDER BY chunk_index`,
		documentID, companyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.DocumentChunk
	for rows.Next() {
		var (
			c      domain.DocumentChunk
			source string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.CompanyID, &c.ChunkIndex, &c.Text, &source, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.EmbeddingSource = domain.EmbeddingSource(source)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// ListFallbackByDocument returns the chunks whose embedding did not come from the model.
func (r *ChunkRepository) ListFallbackByDocument(ctx context.Context, documentID string) ([]*domain.DocumentChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, company_id, chunk_index, text, embedding_source, created_at
		 FROM document_chunks
		 WHERE document_id = $1 AND embedding_source <> $2
		 ORDER BY chunk_index`,
		documentID, string(domain.EmbeddingSourceModel),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.DocumentChunk
	for rows.Next() {
		var (
			c      domain.DocumentChunk
			source string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.CompanyID, &c.ChunkIndex, &c.Text, &source, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.EmbeddingSource = domain.EmbeddingSource(source)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// SearchSemantic ranks the company's chunks by cosine similarity to vec.
// Similarity is NaN for zero vectors; callers sanitize it.
// An empty documentIDs searches every document of the company.
func (r *ChunkRepository) SearchSemantic(ctx context.Context, companyID string, vec []float32, documentIDs []string, limit int) ([]*domain.ChunkMatch, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.company_id, c.chunk_index, c.text, c.embedding_source, c.created_at,
		        d.filename, 1 - (c.embedding <=> $2) AS similarity
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.company_id = $1
		   AND ($3::uuid[] IS NULL OR c.document_id = ANY($3::uuid[]))
		 ORDER BY c.embedding <=> $2, c.chunk_index
		 LIMIT $4`,
		companyID, pgvector.NewVector(vec), documentIDFilter(documentIDs), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows, true)
}

// SearchKeyword returns chunks containing any of words, case-insensitively.
func (r *ChunkRepository) SearchKeyword(ctx context.Context, companyID string, words []string, documentIDs []string, limit int) ([]*domain.ChunkMatch, error) {
	patterns := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		patterns = append(patterns, "%"+escapeLike(w)+"%")
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.document_id, c.company_id, c.chunk_index, c.text, c.embedding_source, c.created_at,
		        d.filename
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.company_id = $1
		   AND ($3::uuid[] IS NULL OR c.document_id = ANY($3::uuid[]))
		   AND c.text ILIKE ANY($2::text[])
		 ORDER BY d.created_at DESC, c.chunk_index
		 LIMIT $4`,
		companyID, patterns, documentIDFilter(documentIDs), limit,
	)
	if err != nil {
		return nil, err
	}
	return collectMatches(rows, false)
}

// UpdateEmbeddings replaces chunk vectors in one batch.
func (r *ChunkRepository) UpdateEmbeddings(ctx context.Context, updates []domain.ChunkEmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(
			`UPDATE document_chunks SET embedding = $1, embedding_source = $2 WHERE id = $3`,
			pgvector.NewVector(u.Embedding), string(u.Source), u.ChunkID,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for range updates {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

func collectMatches(rows pgx.Rows, withSimilarity bool) ([]*domain.ChunkMatch, error) {
	defer rows.Close()

	var matches []*domain.ChunkMatch
	for rows.Next() {
		var (
			m      domain.ChunkMatch
			source string
		)
		dest := []any{&m.ID, &m.DocumentID, &m.CompanyID, &m.ChunkIndex, &m.Text, &source, &m.CreatedAt, &m.Filename}
		if withSimilarity {
			dest = append(dest, &m.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		m.EmbeddingSource = domain.EmbeddingSource(source)
		matches = append(matches, &m)
	}
	return matches, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
