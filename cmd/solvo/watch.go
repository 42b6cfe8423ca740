package main

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solvo-project/solvo/pkg/compile"
	"github.com/solvo-project/solvo/pkg/lib/filemonitor"
	"github.com/solvo-project/solvo/pkg/model"
)

// newWatchCmd returns the command that solves a model file and then
// re-solves it whenever the file or one of its patches changes.
func newWatchCmd(logger *logrus.Logger) *cobra.Command {
	var (
		format  string
		patches []string
	)
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Solve a model file and re-solve whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			compiler := compile.New(logger)
			out := cmd.OutOrStdout()
			first := true

			solveOnce := func() error {
				raw, err := model.LoadRaw(args[0])
				if err != nil {
					return err
				}
				for _, patch := range patches {
					data, err := os.ReadFile(patch)
					if err != nil {
						return errors.Wrapf(err, "unable to read patch %s", patch)
					}
					if raw, err = model.MergeRaw(raw, data); err != nil {
						return errors.Wrapf(err, "unable to apply patch %s", patch)
					}
				}
				doc, err := model.Decode(raw)
				if err != nil {
					return errors.Wrapf(err, "unable to parse %s", args[0])
				}
				result, err := compiler.Solve(cmd.Context(), doc)
				if err != nil {
					return err
				}
				rendered, err := render(result, format, "")
				if err != nil {
					return err
				}
				if !first && format == "yaml" {
					fmt.Fprintln(out, "---")
				}
				first = false
				_, err = out.Write(rendered)
				return err
			}

			if err := solveOnce(); err != nil {
				return err
			}

			watched := append([]string{args[0]}, patches...)
			w, err := filemonitor.NewWatch(logger, watched, func(l *logrus.Logger, event fsnotify.Event) {
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					return
				}
				l.WithField("file", event.Name).Info("model changed, solving again")
				if err := solveOnce(); err != nil {
					l.WithError(err).Error("solve failed")
				}
			})
			if err != nil {
				return err
			}
			w.Run(cmd.Context())
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "result encoding, one of: [yaml, json]")
	cmd.Flags().StringArrayVar(&patches, "patch", nil, "merge patch file applied before solving, in order (repeatable)")
	return cmd
}
