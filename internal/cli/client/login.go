package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// LoginCmd verifies credentials against the server and stores them in the
// global config file.
func LoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save API credentials",
		Long:  "Verifies the API key from --api-key or DOCINGEST_API_KEY and saves it with the API URL to the user config directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")

			creds, err := ResolveCredentials(strings.TrimSpace(flagKey), strings.TrimSpace(flagURL))
			if err != nil {
				return err
			}
			if creds.APIKey == "" {
				return errors.New("--api-key is required")
			}
			if !IsValidAPIKey(creds.APIKey) {
				return errors.New("invalid API key format (expected hrk_<64 hex chars>)")
			}

			api := NewAPIClientWithConfig(creds.APIKey, creds.APIURL)
			if _, err := api.ListDocuments(cmd.Context()); err != nil {
				return fmt.Errorf("failed to verify credentials: %w", err)
			}

			if err := SaveGlobalConfig(&GlobalConfig{APIKey: creds.APIKey, APIURL: creds.APIURL}); err != nil {
				return err
			}

			path, _ := GetConfigPath()
			successColor.Fprintf(cmd.OutOrStdout(), "✓ Logged in to %s\n", creds.APIURL)
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials saved to %s\n", path)
			return nil
		},
	}
}

// LogoutCmd removes stored credentials.
func LogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved API credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return err
			}
			successColor.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}

// WhoamiCmd reports which credentials are in effect.
func WhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the credentials in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")

			creds, err := ResolveCredentials(flagKey, flagURL)
			if err != nil {
				return err
			}

			masked := maskKey(creds.APIKey)
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"api_url": creds.APIURL,
					"api_key": masked,
					"source":  string(creds.Source),
				})
			}

			out := cmd.OutOrStdout()
			labelColor.Fprint(out, "API URL: ")
			fmt.Fprintln(out, creds.APIURL)
			labelColor.Fprint(out, "API key: ")
			if creds.APIKey == "" {
				warnColor.Fprintln(out, "not set")
				return nil
			}
			fmt.Fprintf(out, "%s (from %s)\n", masked, creds.Source)
			return nil
		},
	}
}

func maskKey(key string) string {
	if len(key) <= len(apiKeyPrefix)+8 {
		return key
	}
	return key[:len(apiKeyPrefix)+4] + "…" + key[len(key)-4:]
}
