package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/server/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an access token for the serve API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authService, err := auth.NewAuthService(&a.cfg.Auth)
			if err != nil {
				return err
			}
			token, err := authService.IssueToken(args[0])
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}
