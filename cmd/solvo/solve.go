package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solvo-project/solvo/internal/exit"
	"github.com/solvo-project/solvo/pkg/compile"
	"github.com/solvo-project/solvo/pkg/lib/jsonquery"
	"github.com/solvo-project/solvo/pkg/model"
	"github.com/solvo-project/solvo/pkg/solver"
	"github.com/solvo-project/solvo/pkg/store"
)

// newSolveCmd returns the command that solves a model file and prints
// the result.
func newSolveCmd(logger *logrus.Logger) *cobra.Command {
	var (
		output    string
		format    string
		query     string
		patches   []string
		scenarios string
		timeout   time.Duration
		trace     bool
		storePath string
	)
	cmd := &cobra.Command{
		Use:   "solve <file>",
		Short: "Solve a model file and print the result",
		Example: heredoc.Doc(`
			# Solve a manifest and print the result as YAML
			solvo solve stack.yaml

			# Apply merge patches in order, then extract one field
			solvo solve plan.yaml --patch peak.yaml --query .objective

			# Solve the base model plus every patch in a directory
			solvo solve plan.yaml --scenarios scenarios/
		`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			compiler := compile.New(logger)
			if trace {
				compiler.Tracer = solver.LoggingTracer{Writer: cmd.ErrOrStderr()}
			}

			var st *store.Store
			if storePath != "" {
				var err error
				if st, err = store.Open(storePath); err != nil {
					return err
				}
				defer st.Close()
			}

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

			if scenarios != "" {
				results, err := solveScenarios(ctx, logger, compiler, st, raw, scenarios)
				if err != nil {
					return err
				}
				rendered, err := render(results, format, query)
				if err != nil {
					return err
				}
				if err := writeOutput(cmd, output, rendered); err != nil {
					return err
				}
				for _, result := range results {
					if !result.Feasible() {
						return exit.Error(3)
					}
				}
				return nil
			}

			doc, err := model.Decode(raw)
			if err != nil {
				return errors.Wrapf(err, "unable to parse %s", args[0])
			}
			result, err := compiler.Solve(ctx, doc)
			if err != nil {
				return err
			}
			recordRun(logger, st, result)

			rendered, err := render(result, format, query)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, output, rendered); err != nil {
				return err
			}
			if !result.Feasible() {
				return exit.Error(3)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().StringVar(&format, "format", "yaml", "result encoding, one of: [yaml, json]")
	cmd.Flags().StringVar(&query, "query", "", "jq expression applied to the result")
	cmd.Flags().StringArrayVar(&patches, "patch", nil, "merge patch file applied before solving, in order (repeatable)")
	cmd.Flags().StringVar(&scenarios, "scenarios", "", "directory of merge patches solved against the base model")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abandon the solve after this duration")
	cmd.Flags().BoolVar(&trace, "trace", false, "write the search trace to stderr")
	cmd.Flags().StringVar(&storePath, "store", "", "sqlite database recording this run")
	return cmd
}

// solveScenarios solves the base document plus one variant per patch
// file in dir, concurrently. Results are keyed by patch file name,
// with the unpatched model under "base".
func solveScenarios(ctx context.Context, logger *logrus.Logger, compiler *compile.Compiler, st *store.Store, raw []byte, dir string) (map[string]*compile.Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read scenario directory %s", dir)
	}

	variants := map[string][]byte{"base": raw}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		patch, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read scenario %s", entry.Name())
		}
		merged, err := model.MergeRaw(raw, patch)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to apply scenario %s", entry.Name())
		}
		variants[entry.Name()] = merged
	}

	var mu sync.Mutex
	results := make(map[string]*compile.Result, len(variants))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for name, data := range variants {
		g.Go(func() error {
			doc, err := model.Decode(data)
			if err != nil {
				return errors.Wrapf(err, "unable to parse scenario %s", name)
			}
			result, err := compiler.Solve(ctx, doc)
			if err != nil {
				return errors.Wrapf(err, "scenario %s", name)
			}
			recordRun(logger, st, result)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// render encodes v as YAML or JSON, optionally passing it through a
// jq query first.
func render(v interface{}, format, query string) ([]byte, error) {
	if query != "" {
		outs, err := jsonquery.Run(query, v)
		if err != nil {
			return nil, err
		}
		if len(outs) == 1 {
			v = outs[0]
		} else {
			v = outs
		}
	}
	switch format {
	case "yaml":
		return yaml.Marshal(v)
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, errors.Errorf("unsupported format %q, expected yaml or json", format)
	}
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// recordRun stores the result when a store is configured. Recording
// failures never mask the solve outcome.
func recordRun(logger *logrus.Logger, st *store.Store, result *compile.Result) {
	if st == nil {
		return
	}
	if _, err := st.Record(result); err != nil {
		logger.WithError(err).Warn("unable to record run")
	}
}
