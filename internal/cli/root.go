package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/recordstore/internal/harness"
	"github.com/roach88/recordstore/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	IDProperty string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the recstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recstore",
		Short: "recstore - ordered record store tools",
		Long: `Query, patch, diff and browse record files through an ordered record store.

Record files are YAML, JSON or CUE documents holding a list of records
(or an object with a "records" list).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.IDProperty, "id-property", store.DefaultIDProperty, "record identifier property")

	cmd.AddCommand(NewFetchCommand(opts))
	cmd.AddCommand(NewPatchCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewTreeCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// Execute runs the root command with the process arguments and returns the
// exit code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || !exitErr.reported {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		}
		return GetExitCode(err)
	}
	return ExitSuccess
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// logger writes to w at Info, or Debug with --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openStore creates a memory-backed store seeded with records and waits for
// the initial add.
func (o *RootOptions) openStore(cmd *cobra.Command, records []harness.Record) (*store.Store[harness.Record], error) {
	st, err := store.New(
		store.WithIDProperty[harness.Record](o.IDProperty),
		store.WithLogger[harness.Record](o.logger(cmd.ErrOrStderr())),
		store.WithData(records...),
	)
	if err != nil {
		return nil, report(o.formatter(cmd), ErrCodeGeneric, ExitCommandError, "failed to create store", err)
	}
	if _, err := st.Ready().Wait(cmd.Context()); err != nil {
		st.Close()
		return nil, report(o.formatter(cmd), ErrCodeRejected, ExitFailure, "failed to load records", err)
	}
	return st, nil
}
