package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/foldersync"
	"github.com/tradedata/s3sync/internal/utils"
	"github.com/tradedata/s3sync/internal/watcher"
)

func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("debounce", 0, "quiet period after local changes before a sync (default 2s)")
	cmd.Flags().Duration("interval", 0, "also sync on this interval to pick up remote changes, 0 disables")
}

// newWatcher builds a watcher for job that ignores the same paths the engine excludes
func (a *app) newWatcher(job *foldersync.Job, onSync watcher.SyncCallback) (*watcher.Watcher, error) {
	root, err := utils.ResolvePath(job.LocalRoot())
	if err != nil {
		return nil, err
	}
	matcher, err := foldersync.NewMatcher(a.cfg.Sync.Exclude)
	if err != nil {
		return nil, err
	}
	if err := matcher.LoadIgnoreFile(root); err != nil {
		return nil, err
	}

	return watcher.New(root, job,
		watcher.WithDebounce(a.cfg.Sync.Debounce),
		watcher.WithInterval(a.cfg.Sync.Interval),
		watcher.WithFilter(matcher.Excluded),
		watcher.WithOnSync(onSync),
	), nil
}

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [local-dir] [prefix]",
		Short: "Sync now and again whenever the local directory changes",
		Args:  cobra.MaximumNArgs(2),
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

			job := foldersync.NewJob(engine, a.cfg.Sync.LocalDir, a.cfg.Sync.Prefix)
			w, err := a.newWatcher(job, func(res *foldersync.Result, err error) {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", red("sync failed:"), err)
					return
				}
				if res.HasChanges() || res.Stats.Errors > 0 || res.Stats.Conflicts > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cyan("synced"), res.Stats)
				}
			})
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			return w.Run(cmd.Context())
		},
	}

	addSyncFlags(cmd)
	addWatchFlags(cmd)
	return cmd
}
