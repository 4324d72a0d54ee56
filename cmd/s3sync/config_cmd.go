package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.cfg.Path != "" {
				fmt.Fprintf(w, "# %s\n", a.cfg.Path)
			}
			fmt.Fprintf(w, "# cache: %s\n", a.cfg.CachePath())
			_, err = w.Write(out)
			return err
		},
	}
}
