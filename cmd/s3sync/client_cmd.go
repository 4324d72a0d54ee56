package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/apiclient"
)

func newClientCmd(a *app) *cobra.Command {
	var serverURL, token string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Query a running `s3sync serve`",
	}
	cmd.PersistentFlags().StringVarP(&serverURL, "url", "u", "", "server URL (default http://<http.addr>)")
	cmd.PersistentFlags().StringVarP(&token, "token", "t", "", "access token (default $S3SYNC_TOKEN)")

	newClient := func() (*apiclient.Client, error) {
		if serverURL == "" {
			serverURL = a.cfg.HTTP.Addr
		}
		if token == "" {
			token = os.Getenv("S3SYNC_TOKEN")
		}
		return apiclient.New(serverURL, token)
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the served sync job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			c, err := newClient()
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			state := green("idle")
			if status.Running {
				state = yellow("running")
			}
			fmt.Fprintf(out, "%-10s %s\n", "state", state)
			fmt.Fprintf(out, "%-10s %d\n", "runs", status.Runs)
			if !status.LastRun.IsZero() {
				fmt.Fprintf(out, "%-10s %s (%s)\n", "last run", humanize.Time(status.LastRun), status.Duration.Round(time.Millisecond))
				fmt.Fprintf(out, "%-10s %s\n", "stats", status.Stats)
			}
			if status.Error != "" {
				fmt.Fprintf(out, "%-10s %s\n", "error", red(status.Error))
			}
			return nil
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger a sync on the server and wait for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Sync(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s in %s\n", cyan("synced"), res.Stats, res.Duration)
			for _, conflict := range res.Conflicts {
				fmt.Fprintf(out, "  %s %s: %s\n", yellow("!"), conflict.Path, conflict.Reason)
			}
			for _, path := range res.Failed {
				fmt.Fprintf(out, "  %s %s\n", red("x"), path)
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("sync finished with %d errors", len(res.Failed))
			}
			return nil
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List the files the server has synced",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			c, err := newClient()
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			list, err := c.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, f := range list.Files {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Path, humanize.Bytes(uint64(f.Size)), f.ModTime.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}

	urlCmd := &cobra.Command{
		Use:   "url <path>",
		Short: "Get a download URL from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			c, err := newClient()
			if err != nil {
				return err
			}
			url, err := c.PresignURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), url.URL)
			return err
		},
	}

	cmd.AddCommand(statusCmd, syncCmd, lsCmd, urlCmd)
	return cmd
}
