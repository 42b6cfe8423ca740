package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solvo-project/solvo/pkg/compile"
	"github.com/solvo-project/solvo/pkg/model"
)

// newInspectCmd returns the command that prints the compiled form of a
// model file for debugging.
func newInspectCmd(logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the compiled variables and constraints of a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := model.Load(args[0])
			if err != nil {
				return err
			}
			return compile.New(logger).Inspect(cmd.OutOrStdout(), doc)
		},
	}
}
