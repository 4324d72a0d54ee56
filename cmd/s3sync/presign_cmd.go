package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/foldersync"
)

func newPresignCmd(a *app) *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "presign <path>",
		Short: "Print a temporary download URL for a synced file",
		Long: `Print a presigned GET URL for the object holding <path> under the sync prefix.
Compressed objects are returned as stored, with their .zst suffix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiry <= 0 {
				expiry = a.cfg.HTTP.PresignExpiry
			}
			cmd.SilenceUsage = true

			backend, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			fp, err := foldersync.LookupRemote(cmd.Context(), backend, a.cfg.Sync.Prefix, args[0])
			if err != nil {
				return err
			}
			url, err := backend.PresignGetObject(cmd.Context(), fp.Key, expiry)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), url)
			return err
		},
	}
	cmd.Flags().StringP("prefix", "p", "", "remote key prefix")
	cmd.Flags().DurationVarP(&expiry, "expiry", "e", 0, "URL lifetime (default http.presign_expiry)")
	return cmd
}
