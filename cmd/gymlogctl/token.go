package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/gymlog/internal/auth"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
	tokenScopes  []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Work with admin service tokens",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Print a signed admin JWT",
	Long: `Mint an HS256 token signed with ADMIN_JWT_SECRET for the /admin routes.

USAGE:

  $ curl -X PUT -H "Authorization: Bearer $(gymlogctl token mint)" \
      -d '{"password":"n3w-pa55"}' localhost:8080/admin/users/neil/password`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		adminCfg := auth.Config{Secret: cfg.AdminJWTSecret, Issuer: cfg.AdminJWTIssuer}
		if !adminCfg.Enabled() {
			return errors.New("ADMIN_JWT_SECRET is not set")
		}
		token, err := auth.Mint(adminCfg, tokenSubject, tokenScopes, tokenTTL, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenMintCmd.Flags().StringVar(&tokenSubject, "subject", "gymlogctl", "token subject")
	tokenMintCmd.Flags().DurationVar(&tokenTTL, "ttl", 15*time.Minute, "token lifetime")
	tokenMintCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{auth.ScopeAdminUsers}, "granted scopes")
	tokenCmd.AddCommand(tokenMintCmd)
	rootCmd.AddCommand(tokenCmd)
}
