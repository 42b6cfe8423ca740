package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/solvo-project/solvo/pkg/model"
	"github.com/solvo-project/solvo/pkg/store"
)

// newRunsCmd returns the command that lists recorded runs.
func newRunsCmd() *cobra.Command {
	var (
		storePath string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(storePath)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.List(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tNAME\tKIND\tSTATUS\tOBJECTIVE\tDURATION")
			for _, run := range runs {
				objective := "-"
				if run.Objective != nil {
					objective = model.FormatPoint(*run.Objective)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					run.CreatedAt.Format(time.RFC3339), run.Name, run.Kind, run.Status,
					objective, (time.Duration(run.DurationMillis) * time.Millisecond).String())
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "sqlite database to read")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	if err := cmd.MarkFlagRequired("store"); err != nil {
		log.Fatalf("unable to mark `store` flag for `runs` subcommand as required")
	}
	return cmd
}
