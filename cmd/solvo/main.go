package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solvo-project/solvo/internal/exit"
	"github.com/solvo-project/solvo/pkg/lib/signals"
	"github.com/solvo-project/solvo/pkg/version"
)

func main() {
	if err := newRootCmd().ExecuteContext(signals.Context()); err != nil {
		var code exit.Error
		if errors.As(err, &code) {
			os.Exit(code.Code())
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		debug       bool
		showVersion bool
	)
	logger := logrus.New()
	cmd := &cobra.Command{
		Use:   "solvo",
		Short: "Solve selection and linear programming models from manifest files",
		Long: heredoc.Doc(`
			solvo reads optimization models written as JSON or YAML manifests
			and solves them. SelectionProblem documents pick a compatible set
			of items under dependency, conflict, and grouping rules;
			LinearProgram documents minimize or maximize a linear objective,
			optionally over a discretized time horizon.
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Fprint(cmd.OutOrStdout(), version.String())
				return nil
			}
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "use debug log level")
	cmd.Flags().BoolVar(&showVersion, "version", false, "print the solvo version and exit")

	cmd.AddCommand(
		newSolveCmd(logger),
		newCheckCmd(logger),
		newInspectCmd(logger),
		newWatchCmd(logger),
		newRunsCmd(),
		newServeCmd(logger),
		newVersionCmd(),
	)
	return cmd
}
