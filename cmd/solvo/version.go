package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solvo-project/solvo/pkg/version"
)

// newVersionCmd returns the command that prints the solvo version.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the solvo version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprint(cmd.OutOrStdout(), version.String())
		},
	}
}
