package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tradedata/s3sync/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print s3sync version information",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Detailed())
			return err
		},
	}
}
