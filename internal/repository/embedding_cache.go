package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingCacheRepository is the postgres-backed embedding.Cache.
type EmbeddingCacheRepository struct {
	db dbtx
}

func NewEmbeddingCacheRepository(pool *pgxpool.Pool) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{db: pool}
}

func (r *EmbeddingCacheRepository) Get(ctx context.Context, model, textHash string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := r.db.QueryRow(ctx,
		`SELECT embedding FROM embeddings_cache WHERE model = $1 AND text_hash = $2`,
		model, textHash,
	).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return vec.Slice(), true, nil
}

func (r *EmbeddingCacheRepository) Put(ctx context.Context, model, textHash string, vec []float32) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO embeddings_cache (model, text_hash, embedding)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (model, text_hash) DO UPDATE SET embedding = EXCLUDED.embedding`,
		model, textHash, pgvector.NewVector(vec),
	)
	return err
}
