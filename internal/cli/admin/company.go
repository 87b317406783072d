package admin

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/pagination"
	"github.com/hrplatform/docingest/internal/repository"
	"github.com/hrplatform/docingest/internal/service"
)

func CompanyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Manage companies",
		Long:  "Create and list the companies (tenants) that own documents",
	}

	cmd.AddCommand(CompanyCreateCmd())
	cmd.AddCommand(CompanyListCmd())

	return cmd
}

func CompanyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new company",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompanyCreate,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runCompanyCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	authSvc := service.NewAuthService(repository.NewCompanyRepository(pool), nil, &service.DefaultUUIDGenerator{})

	company, err := authSvc.CreateCompany(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	return printCompany(cmd.OutOrStdout(), company, outputFormat)
}

func printCompany(w io.Writer, c *domain.Company, outputFormat string) error {
	if outputFormat == "json" {
		return writeJSON(w, companyToJSON(c))
	}
	_, err := fmt.Fprintf(w, "Company created: %s (%s)\n", c.Name, c.ID)
	return err
}

func CompanyListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runCompanyList(cmd, outputFormat, limit, cursor)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", pagination.DefaultLimit, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runCompanyList(cmd *cobra.Command, outputFormat string, limit int, cursorStr string) error {
	ctx := cmd.Context()

	cursor, err := pagination.DecodeCursor(cursorStr)
	if err != nil {
		return fmt.Errorf("invalid --cursor: %w", err)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	page, err := repository.NewCompanyRepository(pool).ListPage(ctx, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list companies: %w", err)
	}

	return printCompanyPage(cmd.OutOrStdout(), page, outputFormat)
}

func printCompanyPage(w io.Writer, page *pagination.PageResult[*domain.Company], outputFormat string) error {
	if outputFormat == "json" {
		items := make([]companyJSON, len(page.Items))
		for i, c := range page.Items {
			items[i] = companyToJSON(c)
		}
		return writeJSON(w, pagination.PageResult[companyJSON]{
			Items:   items,
			Cursor:  page.Cursor,
			HasMore: page.HasMore,
		})
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No companies found")
		return nil
	}
	fmt.Fprintln(w, "Companies:")
	for _, c := range page.Items {
		fmt.Fprintf(w, "  %s: %s (created: %s)\n", c.ID, c.Name, c.CreatedAt.Format(timeLayout))
	}
	if page.HasMore {
		fmt.Fprintf(w, "\nMore results available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}

type companyLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Company, error)
	GetByName(ctx context.Context, name string) (*domain.Company, error)
}

// resolveCompanyID accepts a company ID or name.
func resolveCompanyID(ctx context.Context, companies companyLookup, ref string) (string, error) {
	var (
		company *domain.Company
		err     error
	)
	if _, parseErr := uuid.Parse(ref); parseErr == nil {
		company, err = companies.GetByID(ctx, ref)
	} else {
		company, err = companies.GetByName(ctx, ref)
	}
	if err != nil {
		if errors.Is(err, domain.ErrCompanyNotFound) {
			return "", fmt.Errorf("company not found: %s", ref)
		}
		return "", err
	}
	return company.ID, nil
}
