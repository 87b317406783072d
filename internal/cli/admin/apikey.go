package admin

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/repository"
	"github.com/hrplatform/docingest/internal/service"
)

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create, list, and revoke the API keys a company uses to call the service",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyListCmd())
	cmd.AddCommand(APIKeyRevokeCmd())

	return cmd
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().StringP("company", "c", "", "Company ID or name (required)")
	cmd.Flags().StringP("name", "n", "", "API key name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("company")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	companyRef, _ := cmd.Flags().GetString("company")
	name, _ := cmd.Flags().GetString("name")
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

	companyRepo := repository.NewCompanyRepository(pool)
	authSvc := service.NewAuthService(companyRepo, repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})

	companyID, err := resolveCompanyID(ctx, companyRepo, companyRef)
	if err != nil {
		return err
	}

	token, err := authSvc.CreateAPIKey(ctx, companyID, name)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	key, err := authSvc.GetAPIKeyByHash(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to retrieve created key: %w", err)
	}

	return printCreatedKey(cmd.OutOrStdout(), key, token, outputFormat)
}

func printCreatedKey(w io.Writer, key *domain.APIKey, token, outputFormat string) error {
	if outputFormat == "json" {
		out := apiKeyToJSON(key)
		out.Token = token
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "API key created for company %s\n", key.CompanyID)
	fmt.Fprintf(w, "Key ID: %s\n", key.ID)
	fmt.Fprintf(w, "Key Name: %s\n", key.Name)
	fmt.Fprintf(w, "Token: %s\n", token)
	fmt.Fprintln(w, "\nSave this token now. It cannot be shown again.")
	return nil
}

func APIKeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for a company",
		RunE:  runAPIKeyList,
	}

	cmd.Flags().StringP("company", "c", "", "Company ID or name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("company")

	return cmd
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	companyRef, _ := cmd.Flags().GetString("company")
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

	companyRepo := repository.NewCompanyRepository(pool)
	authSvc := service.NewAuthService(companyRepo, repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})

	companyID, err := resolveCompanyID(ctx, companyRepo, companyRef)
	if err != nil {
		return err
	}

	keys, err := authSvc.ListAPIKeys(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to list API keys: %w", err)
	}

	return printKeys(cmd.OutOrStdout(), companyID, keys, outputFormat)
}

func printKeys(w io.Writer, companyID string, keys []*domain.APIKey, outputFormat string) error {
	if outputFormat == "json" {
		items := make([]apiKeyJSON, len(keys))
		for i, k := range keys {
			items[i] = apiKeyToJSON(k)
		}
		return writeJSON(w, items)
	}

	if len(keys) == 0 {
		fmt.Fprintf(w, "No API keys found for company %s\n", companyID)
		return nil
	}
	fmt.Fprintf(w, "API keys for company %s:\n", companyID)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s (%s, created: %s)\n", k.ID, k.Name, keyStatus(k), k.CreatedAt.Format(timeLayout))
	}
	return nil
}

func APIKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE:  runAPIKeyRevoke,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	keyID := args[0]
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

	authSvc := service.NewAuthService(nil, repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})
	if err := authSvc.RevokeAPIKey(ctx, keyID); err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	w := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(w, map[string]interface{}{
			"id":      keyID,
			"revoked": true,
			"message": "API key revoked successfully",
		})
	}
	fmt.Fprintf(w, "API key %s revoked successfully\n", keyID)
	return nil
}
