package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/recordstore/internal/harness"
	"github.com/roach88/recordstore/internal/ir"
)

// ScenarioOutput is the outcome of one scenario file.
type ScenarioOutput struct {
	File   string               `json:"file"`
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace"`
	State  []harness.Record     `json:"state"`

	// StateDigest identifies the final records; runs that end in the same
	// state share it across backends.
	StateDigest string `json:"state_digest"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario <file.yaml>...",
		Short: "Run store scenarios",
		Long: `Run YAML scenarios against a fresh store each and report which passed.

A scenario seeds the store, submits a list of calls and checks expected
outcomes, trace assertions and the final records. The command exits with
status 1 when any scenario fails.

Example:
  recstore scenario testdata/scenarios/*.yaml
  recstore scenario ordered_crud.yaml --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd, rootOpts, args)
		},
	}
	return cmd
}

func runScenarios(cmd *cobra.Command, opts *RootOptions, paths []string) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	outputs := make([]ScenarioOutput, 0, len(paths))
	failed := 0
	for _, path := range paths {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			return report(formatter, ErrCodeLoadFailed, ExitCommandError, "failed to load scenario "+path, err)
		}
		formatter.VerboseLog("Running %s (%d steps)", scenario.Name, len(scenario.Steps))

		result, err := harness.Run(scenario, harness.WithLogger(logger))
		if err != nil {
			return report(formatter, ErrCodeScenarioRun, ExitCommandError, "failed to run scenario "+scenario.Name, err)
		}
		if !result.Pass {
			failed++
		}
		digest, err := ir.StateDigest(result.State)
		if err != nil {
			return report(formatter, ErrCodeScenarioRun, ExitCommandError, "failed to digest state of "+scenario.Name, err)
		}
		outputs = append(outputs, ScenarioOutput{
			File:        path,
			Name:        scenario.Name,
			Pass:        result.Pass,
			Errors:      result.Errors,
			Trace:       result.Trace,
			State:       result.State,
			StateDigest: digest,
		})
	}

	err := formatter.Success(outputs, func(w io.Writer) error {
		for _, out := range outputs {
			status := "PASS"
			if !out.Pass {
				status = "FAIL"
			}
			fmt.Fprintf(w, "%s %s\n", status, out.Name)
			for _, msg := range out.Errors {
				fmt.Fprintf(w, "    %s\n", msg)
			}
		}
		_, err := fmt.Fprintf(w, "%d passed, %d failed\n", len(outputs)-failed, failed)
		return err
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d scenario(s) failed", failed), reported: true}
	}
	return nil
}
