package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type CompanyRepository struct {
	db dbtx
}

func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepository {
	return &CompanyRepository{db: pool}
}

func (r *CompanyRepository) Create(ctx context.Context, company *domain.Company) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO companies (id, name, created_at) VALUES ($1, $2, $3)`,
		company.ID, company.Name, company.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrCompanyAlreadyExists
	}
	return err
}

func (r *CompanyRepository) GetByID(ctx context.Context, id string) (*domain.Company, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM companies WHERE id = $1`, id)
}

func (r *CompanyRepository) GetByName(ctx context.Context, name string) (*domain.Company, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM companies WHERE name = $1`, name)
}

func (r *CompanyRepository) getOne(ctx context.Context, query string, arg string) (*domain.Company, error) {
	var c domain.Company
	err := r.db.QueryRow(ctx, query, arg).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCompanyNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListPage returns companies newest first, starting after cursor.
func (r *CompanyRepository) ListPage(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Company], error) {
	limit = pagination.NormalizeLimit(limit)

	var (
		rows pgx.Rows
		err  error
	)
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, name, created_at FROM companies
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, name, created_at FROM companies
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []*domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.BuildPage(companies, limit, func(c *domain.Company) (string, time.Time) {
		return c.ID, c.CreatedAt
	}), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
