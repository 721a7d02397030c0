package cli

import (
	"github.com/spf13/cobra"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/config"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
)

var (
	authServerURL string
	authUsername  string
	authTeamSlug  string
	authToken     string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored account identity used for event sync",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an account identity and access token",
	RunE: wrap("auth login", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		if authToken == "" {
			return nil, kerrors.New(kerrors.UsageError, "--token is required")
		}
		home, err := config.RuntimeHome()
		if err != nil {
			return nil, err
		}
		if _, err := config.Bootstrap(Version); err != nil {
			return nil, err
		}
		creds := &config.Credentials{ServerURL: authServerURL, Username: authUsername, TeamSlug: authTeamSlug, AccessToken: authToken}
		if err := config.SaveCredentials(home, creds); err != nil {
			return nil, err
		}
		return map[string]any{"server_url": authServerURL, "username": authUsername, "team_slug": authTeamSlug}, nil
	}),
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored account identity",
	RunE: wrap("auth logout", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		home, err := config.RuntimeHome()
		if err != nil {
			return nil, err
		}
		if err := config.ClearCredentials(home); err != nil {
			return nil, err
		}
		return nil, nil
	}),
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an account identity is currently stored",
	RunE: wrap("auth status", func(cmd *cobra.Command, args []string) (map[string]any, error) {
		home, err := config.RuntimeHome()
		if err != nil {
			return nil, err
		}
		creds, err := config.LoadCredentials(home)
		if err != nil {
			return nil, err
		}
		if creds == nil {
			return map[string]any{"logged_in": false}, nil
		}
		return map[string]any{
			"logged_in":  true,
			"server_url": creds.ServerURL,
			"username":   creds.Username,
			"team_slug":  creds.TeamSlug,
		}, nil
	}),
}

func init() {
	authLoginCmd.Flags().StringVar(&authServerURL, "server-url", "", "upstream server URL")
	authLoginCmd.Flags().StringVar(&authUsername, "username", "", "account username")
	authLoginCmd.Flags().StringVar(&authTeamSlug, "team-slug", "", "team slug")
	authLoginCmd.Flags().StringVar(&authToken, "token", "", "access token")

	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
}
