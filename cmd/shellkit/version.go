package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bhandras/shellkit/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the shellkit version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "shellkit %s\n", version.RichVersion())
			return err
		},
	}
}
