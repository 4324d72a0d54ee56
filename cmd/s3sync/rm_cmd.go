package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/blob"
)

func newRmCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm [sub-prefix]",
		Short: "Delete remote objects under the sync prefix",
		Long: `List the objects under the sync prefix, optionally narrowed to a sub-prefix, and
delete them in batches. Nothing is deleted without --yes. The next sync sees the
objects as deleted remotely.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := blob.NormalizePrefix(a.cfg.Sync.Prefix)
			if len(args) > 0 {
				prefix = blob.NormalizePrefix(blob.JoinKey(prefix, strings.Trim(args[0], "/")))
			}
			if prefix == "" {
				return fmt.Errorf("refusing to operate on the whole bucket, set a prefix")
			}
			cmd.SilenceUsage = true

			backend, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			objects, err := backend.ListObjects(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			keys := make([]string, 0, len(objects))
			var total int64
			for _, obj := range objects {
				keys = append(keys, obj.Key)
				total += obj.Size
				fmt.Fprintf(out, "  %s (%s)\n", obj.Key, humanize.Bytes(uint64(obj.Size)))
			}
			if len(keys) == 0 {
				fmt.Fprintf(out, "no objects under %q\n", prefix)
				return nil
			}
			if !yes {
				fmt.Fprintf(out, "%s %d objects (%s), pass --yes to delete\n", yellow("would delete"), len(keys), humanize.Bytes(uint64(total)))
				return nil
			}

			if err := backend.DeleteObjects(cmd.Context(), keys); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %d objects (%s)\n", green("deleted"), len(keys), humanize.Bytes(uint64(total)))
			return nil
		},
	}
	cmd.Flags().StringP("prefix", "p", "", "remote key prefix")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	return cmd
}
