package repository

import (
	"context"
	"errors"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, company_id, filename, storage_key, file_type, content_type,
	size_bytes, sha256, uploaded_by, chunk_count, created_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.CompanyID, d.Filename, d.StorageKey, string(d.FileType), d.ContentType,
		d.SizeBytes, d.SHA256, d.UploadedBy, d.ChunkCount, d.CreatedAt,
	)
	return err
}

// GetByID returns the document only when it belongs to companyID.
func (r *DocumentRepository) GetByID(ctx context.Context, companyID, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND company_id = $2`,
		id, companyID,
	)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// GetByIDs returns the documents of companyID among ids. Unknown ids are skipped.
func (r *DocumentRepository) GetByIDs(ctx context.Context, companyID string, ids []string) ([]*domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE company_id = $1 AND id = ANY($2::uuid[])
		 ORDER BY created_at DESC, id`,
		companyID, ids,
	)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

// ListByCompany returns the company's documents, newest first.
func (r *DocumentRepository) ListByCompany(ctx context.Context, companyID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+` FROM documents
		 WHERE company_id = $1
		 ORDER BY created_at DESC, id`,
		companyID,
	)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

// Delete removes the document and, through the foreign key, its chunks and jobs.
func (r *DocumentRepository) Delete(ctx context.Context, companyID, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND company_id = $2`,
		id, companyID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func collectDocuments(rows pgx.Rows) ([]*domain.Document, error) {
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var (
		d        domain.Document
		fileType string
	)
	err := row.Scan(&d.ID, &d.CompanyID, &d.Filename, &d.StorageKey, &fileType, &d.ContentType,
		&d.SizeBytes, &d.SHA256, &d.UploadedBy, &d.ChunkCount, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.FileType = domain.FileType(fileType)
	return &d, nil
}
