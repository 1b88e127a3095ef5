package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stonefire/cloudsync/internal/credentials"
)

func init() {
	rootCmd.AddCommand(newAuthorizeCmd())
}

func newAuthorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Print the consent URL, or exchange an authorization code with --code",
		Long: `Without flags, prints the URL to open in a browser to grant access.
The vendor then redirects to redirect_uri with a code; when the authorization
listener is not running, pass that code back with --code to store the tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			mgr := credentials.NewManager(&credentials.Config{
				ClientID:     cfg.OneDrive.ClientID,
				ClientSecret: cfg.OneDrive.ClientSecret,
				RedirectURL:  cfg.OneDrive.RedirectURI,
				Scopes:       cfg.OneDrive.Scope,
				AuthURL:      cfg.OneDrive.AuthURL,
				TokenURL:     cfg.OneDrive.TokenURL,
				TokensPath:   cfg.OneDrive.TokensPath,
			})

			code, _ := cmd.Flags().GetString("code")
			if code == "" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), mgr.AuthCodeURL(uuid.NewString()))
				return err
			}

			if _, err := mgr.Exchange(cmd.Context(), code); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), green("Access granted!"), "tokens saved to", mgr.Store().Path())
			return err
		},
	}
	cmd.Flags().String("code", "", "Authorization code returned to redirect_uri")
	return cmd
}
