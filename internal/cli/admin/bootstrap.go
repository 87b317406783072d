package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/service"
)

type bootstrapAuth interface {
	GetCompanyByName(ctx context.Context, name string) (*domain.Company, error)
	CreateCompany(ctx context.Context, name string) (*domain.Company, error)
	GetAPIKeyByHash(ctx context.Context, token string) (*domain.APIKey, error)
	CreateAPIKeyWithToken(ctx context.Context, companyID, name, token string) error
}

// bootstrapInitialCompany makes sure the configured company, and optionally
// its API key, exist. It is safe to run on every start.
func bootstrapInitialCompany(ctx context.Context, auth bootstrapAuth, companyName, apiKey string, logger *slog.Logger) error {
	company, err := auth.GetCompanyByName(ctx, companyName)
	if err != nil && !errors.Is(err, domain.ErrCompanyNotFound) {
		return fmt.Errorf("failed to check existing company: %w", err)
	}

	if company == nil {
		company, err = auth.CreateCompany(ctx, companyName)
		if err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		logger.Info("bootstrap: created company", "company", company.Name, "company_id", company.ID)
	} else {
		logger.Info("bootstrap: company already exists", "company", company.Name, "company_id", company.ID)
	}

	if apiKey == "" {
		return nil
	}

	if !service.IsValidAPIToken(apiKey) {
		return fmt.Errorf("invalid DOCINGEST_INIT_API_KEY format (expected 'hrk_<64 hex chars>')")
	}

	existing, err := auth.GetAPIKeyByHash(ctx, apiKey)
	if err == nil && existing != nil {
		if existing.CompanyID != company.ID {
			return fmt.Errorf("bootstrap API key belongs to another company")
		}
		logger.Info("bootstrap: API key already exists", "key_id", existing.ID)
		return nil
	}
	if err != nil && !errors.Is(err, domain.ErrAPIKeyNotFound) {
		return fmt.Errorf("failed to check existing API key: %w", err)
	}

	if err := auth.CreateAPIKeyWithToken(ctx, company.ID, "bootstrap", apiKey); err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	logger.Info("bootstrap: created API key", "company_id", company.ID)
	return nil
}
