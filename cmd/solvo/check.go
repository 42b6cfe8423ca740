package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solvo-project/solvo/pkg/compile"
	"github.com/solvo-project/solvo/pkg/model"
)

// newCheckCmd returns the command that validates and compiles a model
// file without solving it.
func newCheckCmd(logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate and compile a model file without solving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := model.Load(args[0])
			if err != nil {
				return err
			}
			if err := compile.New(logger).Check(doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", doc.Metadata.Name)
			return nil
		},
	}
}
