package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"example.com/gymlog/internal/domain"
	"example.com/gymlog/internal/persistence"
)

var updatePasswordCmd = &cobra.Command{
	Use:   "update-password USERNAME PASSWORD",
	Short: "Set a user's password and revoke their current token",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 || args[0] == "" || args[1] == "" {
			return errors.New("requires non-empty USERNAME and PASSWORD")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := persistence.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer handle.Close()

		gateway := domain.NewGateway(handle.Store, domain.WithBcryptCost(cfg.BcryptCost))
		if err := gateway.ResetPassword(cmd.Context(), args[0], args[1]); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return fmt.Errorf("username %q not recognised", args[0])
			}
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updatePasswordCmd)
}
