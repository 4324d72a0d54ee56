package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/foldersync"
)

// addSyncFlags registers the flags shared by sync, watch and serve
func addSyncFlags(cmd *cobra.Command) {
	d := foldersync.DefaultOptions()
	flags := cmd.Flags()
	flags.StringP("local-dir", "l", "", "local directory")
	flags.StringP("prefix", "p", "", "remote key prefix")
	flags.StringP("direction", "d", d.Direction.String(), "local-to-remote, remote-to-local or bidirectional")
	flags.Bool("delete", false, "propagate deletions")
	flags.BoolP("force", "f", false, "compare every file by content, ignoring the cache")
	flags.BoolP("dry-run", "n", false, "plan and report without changing anything")
	flags.StringSliceP("exclude", "x", d.ExcludePatterns, "glob patterns to exclude")
	flags.IntP("parallel", "j", d.MaxParallel, "concurrent transfers")
	flags.Bool("compress", d.UseCompression, "store objects zstd compressed with a .zst suffix")
	flags.Duration("clock-skew", 0, "modification times closer than this are a tie")
}

type syncReport struct {
	LocalDir  string               `json:"local_dir"`
	Prefix    string               `json:"prefix"`
	Direction string               `json:"direction"`
	DryRun    bool                 `json:"dry_run"`
	Duration  string               `json:"duration"`
	Stats     foldersync.SyncStats `json:"stats"`
	Conflicts []conflictReport     `json:"conflicts"`
	Errors    []string             `json:"errors,omitempty"`
	Actions   []actionReport       `json:"actions,omitempty"`
}

type conflictReport struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type actionReport struct {
	Type   foldersync.ActionType `json:"type"`
	Path   string                `json:"path"`
	Reason string                `json:"reason,omitempty"`
}

func newSyncReport(a *app, res *foldersync.Result, withActions bool) *syncReport {
	report := &syncReport{
		LocalDir:  a.cfg.Sync.LocalDir,
		Prefix:    a.cfg.Sync.Prefix,
		Direction: a.cfg.Sync.Direction,
		DryRun:    a.cfg.Sync.DryRun,
		Duration:  res.Duration.Round(time.Millisecond).String(),
		Stats:     res.Stats,
		Conflicts: make([]conflictReport, 0, len(res.Conflicts)),
	}
	for _, c := range res.Conflicts {
		report.Conflicts = append(report.Conflicts, conflictReport{Path: c.Path, Reason: c.Reason})
	}
	for _, action := range res.Actions {
		if action.Err != nil {
			report.Errors = append(report.Errors, action.Err.Error())
		}
		if withActions && action.Type != foldersync.ActionSkip && action.Type != foldersync.ActionForget {
			report.Actions = append(report.Actions, actionReport{Type: action.Type, Path: action.Path, Reason: action.Reason})
		}
	}
	return report
}

func printSyncReport(w io.Writer, r *syncReport) {
	title := "sync"
	if r.DryRun {
		title = "dry run"
	}
	fmt.Fprintf(w, "%s %s %s %s (%s)\n", cyan(title), r.LocalDir, cyan("<->"), r.Prefix, r.Direction)

	for _, action := range r.Actions {
		fmt.Fprintf(w, "  %-12s %s\n", action.Type, action.Path)
	}

	s := r.Stats
	fmt.Fprintf(w, "  scanned     %d\n", s.FilesScanned)
	fmt.Fprintf(w, "  uploaded    %s (%s)\n", green(s.FilesUploaded), humanize.Bytes(uint64(s.BytesUploaded)))
	fmt.Fprintf(w, "  downloaded  %s (%s)\n", green(s.FilesDownloaded), humanize.Bytes(uint64(s.BytesDownloaded)))
	fmt.Fprintf(w, "  deleted     %d\n", s.FilesDeleted)
	fmt.Fprintf(w, "  skipped     %d\n", s.FilesSkipped)
	if s.Conflicts > 0 {
		fmt.Fprintf(w, "  conflicts   %s\n", yellow(s.Conflicts))
		for _, c := range r.Conflicts {
			fmt.Fprintf(w, "    %s %s: %s\n", yellow("!"), c.Path, c.Reason)
		}
	}
	if s.Errors > 0 {
		fmt.Fprintf(w, "  errors      %s\n", red(s.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    %s %s\n", red("x"), e)
		}
	}
	fmt.Fprintf(w, "  took        %s\n", r.Duration)
}

func newSyncCmd(a *app) *cobra.Command {
	var asJSON, listActions bool

	cmd := &cobra.Command{
		Use:   "sync [local-dir] [prefix]",
		Short: "Run one incremental sync",
		Example: `  s3sync sync ./ticks market-data/2024 -b my-bucket
  s3sync sync -d remote-to-local --delete ./ticks market-data/2024
  s3sync sync --dry-run --json`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyTargetArgs(args)
			if err := a.requireLocalDir(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			engine, cache, err := a.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer cache.Close()

			res, err := engine.Sync(cmd.Context(), a.cfg.Sync.LocalDir, a.cfg.Sync.Prefix)
			if res == nil {
				return err
			}

			report := newSyncReport(a, res, listActions || a.cfg.Sync.DryRun)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
			} else {
				printSyncReport(cmd.OutOrStdout(), report)
			}

			if err != nil {
				return err
			}
			if res.Stats.Errors > 0 {
				return fmt.Errorf("sync finished with %d errors", res.Stats.Errors)
			}
			return nil
		},
	}

	addSyncFlags(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().BoolVarP(&listActions, "verbose", "v", false, "list every transfer and deletion")
	return cmd
}
