package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/recordstore/patch"
)

// Change kinds reported by diff.
const (
	ChangeAdded   = "added"
	ChangeRemoved = "removed"
	ChangeChanged = "changed"
)

// RecordChange describes how one record differs between two files.
type RecordChange struct {
	ID     string       `json:"id"`
	Change string       `json:"change"`
	Patch  *patch.Patch `json:"patch,omitempty"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <from-file> <to-file>",
		Short: "Compare two record files",
		Long: `Match records by identifier and print, for each record that differs, the
patch that turns the first file's record into the second's.

Removed records come first in the first file's order, then added and
changed records in the second file's order.

Example:
  recstore diff before.yaml after.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, rootOpts, args[0], args[1])
		},
	}
	return cmd
}

func runDiff(cmd *cobra.Command, opts *RootOptions, fromPath, toPath string) error {
	formatter := opts.formatter(cmd)

	from, err := LoadRecords(fromPath)
	if err != nil {
		return loadFailure(formatter, err)
	}
	to, err := LoadRecords(toPath)
	if err != nil {
		return loadFailure(formatter, err)
	}

	// The stores reject files with duplicate identifiers.
	fromStore, err := opts.openStore(cmd, from)
	if err != nil {
		return err
	}
	defer fromStore.Close()
	toStore, err := opts.openStore(cmd, to)
	if err != nil {
		return err
	}
	defer toStore.Close()

	fromIDs := fromStore.Identify(from...)
	toIDs := toStore.Identify(to...)
	before := make(map[string]int, len(fromIDs))
	for i, id := range fromIDs {
		before[id] = i
	}
	after := make(map[string]bool, len(toIDs))
	for _, id := range toIDs {
		after[id] = true
	}

	changes := []RecordChange{}
	for _, id := range fromIDs {
		if !after[id] {
			changes = append(changes, RecordChange{ID: id, Change: ChangeRemoved})
		}
	}
	for i, id := range toIDs {
		j, existed := before[id]
		if !existed {
			changes = append(changes, RecordChange{ID: id, Change: ChangeAdded})
			continue
		}
		p, err := patch.Diff(from[j], to[i])
		if err != nil {
			return report(formatter, ErrCodeGeneric, ExitCommandError, "diff failed", err)
		}
		if p.Len() > 0 {
			changes = append(changes, RecordChange{ID: id, Change: ChangeChanged, Patch: &p})
		}
	}
	formatter.VerboseLog("%d record(s) differ", len(changes))

	return formatter.Success(changes, func(w io.Writer) error {
		for _, c := range changes {
			var err error
			switch c.Change {
			case ChangeRemoved:
				_, err = fmt.Fprintf(w, "- %s\n", c.ID)
			case ChangeAdded:
				_, err = fmt.Fprintf(w, "+ %s\n", c.ID)
			default:
				_, err = fmt.Fprintf(w, "~ %s %v\n", c.ID, c.Patch)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
