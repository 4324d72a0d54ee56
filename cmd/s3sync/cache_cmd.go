package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/synccache"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the sync cache of a target",
	}
	cmd.PersistentFlags().StringP("local-dir", "l", "", "local directory")
	cmd.PersistentFlags().StringP("prefix", "p", "", "remote key prefix")

	cmd.AddCommand(newCacheListCmd(a), newCacheStatsCmd(a), newCacheClearCmd(a))
	return cmd
}

func (a *app) openCache() (*synccache.Store, error) {
	return synccache.Open(a.cfg.CachePath())
}

func newCacheListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [local-dir] [prefix]",
		Short: "List the cached file records",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyTargetArgs(args)
			cmd.SilenceUsage = true

			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			records, err := cache.ListAll(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tSIZE\tMODIFIED\tHASH\tSYNCED")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.Path,
					humanize.Bytes(uint64(r.Size)),
					r.ModTime.Local().Format(time.DateTime),
					shortHash(r.Hash),
					humanize.Time(r.LastSynced),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func newCacheStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [local-dir] [prefix]",
		Short: "Summarize the sync cache",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyTargetArgs(args)
			cmd.SilenceUsage = true

			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			records, err := cache.ListAll(cmd.Context())
			if err != nil {
				return err
			}

			var total int64
			var last time.Time
			for _, r := range records {
				total += r.Size
				if r.LastSynced.After(last) {
					last = r.LastSynced
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-12s %s\n", "cache", cache.Path())
			if info, err := os.Stat(cache.Path()); err == nil {
				fmt.Fprintf(out, "%-12s %s\n", "db size", humanize.Bytes(uint64(info.Size())))
			}
			fmt.Fprintf(out, "%-12s %d\n", "records", len(records))
			fmt.Fprintf(out, "%-12s %s\n", "tracked", humanize.Bytes(uint64(total)))
			if !last.IsZero() {
				fmt.Fprintf(out, "%-12s %s\n", "last sync", humanize.Time(last))
			}
			return nil
		},
	}
}

func newCacheClearCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear [local-dir] [prefix]",
		Short: "Forget every cached record, the next sync compares all files by content",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyTargetArgs(args)
			if !yes {
				return fmt.Errorf("refusing to clear %s without --yes", a.cfg.CachePath())
			}
			cmd.SilenceUsage = true

			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			n, err := cache.Count(cmd.Context())
			if err != nil {
				return err
			}
			if err := cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d records from %s\n", green("cleared"), n, cache.Path())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
