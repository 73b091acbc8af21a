package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recordstore/internal/harness"
	"github.com/roach88/recordstore/tree"
)

// TreeOptions holds flags for the tree command.
type TreeOptions struct {
	*RootOptions
	Expand         []string
	ExpandAll      bool
	ParentProperty string
	Query          QueryFlags
}

// TreeNode is one visible record with its depth in the hierarchy.
type TreeNode struct {
	Depth  int            `json:"depth"`
	Record harness.Record `json:"record"`
}

// NewTreeCommand creates the tree command.
func NewTreeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TreeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tree <records-file>",
		Short: "Show the visible part of a record hierarchy",
		Long: `Treat records as a hierarchy linked by a parent property and print the
records visible with the given nodes expanded: roots, and children of
expanded nodes. Text output indents each record by its depth.

Example:
  recstore tree nodes.yaml --expand a,a1
  recstore tree nodes.yaml --all --sort name`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTree(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.Expand, "expand", nil, "identifiers of expanded nodes")
	cmd.Flags().BoolVar(&opts.ExpandAll, "all", false, "expand every node")
	cmd.Flags().StringVar(&opts.ParentProperty, "parent-property", tree.DefaultParentProperty, "parent reference property")
	opts.Query.register(cmd)

	return cmd
}

func runTree(cmd *cobra.Command, opts *TreeOptions, path string) error {
	formatter := opts.formatter(cmd)

	spec, err := opts.Query.Spec()
	if err != nil {
		return report(formatter, ErrCodeBadQuery, ExitCommandError, "invalid query", err)
	}
	q, err := harness.BuildQuery[harness.Record](spec)
	if err != nil {
		return report(formatter, ErrCodeBadQuery, ExitCommandError, "invalid query", err)
	}

	records, err := LoadRecords(path)
	if err != nil {
		return loadFailure(formatter, err)
	}

	st, err := opts.openStore(cmd, records)
	if err != nil {
		return err
	}
	defer st.Close()

	view := tree.New(st, tree.WithParentProperty(opts.ParentProperty))
	if opts.ExpandAll {
		view.Expand(st.Identify(records...)...)
	} else {
		view.Expand(opts.Expand...)
	}
	formatter.VerboseLog("Expanded: %v", view.Expanded())

	visible, err := view.Fetch(cmd.Context(), q).Wait(cmd.Context())
	if err != nil {
		return report(formatter, ErrCodeRejected, ExitFailure, "fetch failed", err)
	}

	depth := depthFunc(st.Identify(records...), records, opts.ParentProperty)
	ids := st.Identify(visible...)
	nodes := make([]TreeNode, len(visible))
	for i, rec := range visible {
		nodes[i] = TreeNode{Depth: depth(ids[i]), Record: rec}
	}

	return formatter.Success(nodes, func(w io.Writer) error {
		for i, n := range nodes {
			if _, err := fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", n.Depth), ids[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// depthFunc returns the number of existing ancestors of a record. Parent
// cycles stop at the first repeated identifier.
func depthFunc(ids []string, records []harness.Record, parentProperty string) func(string) int {
	parents := make(map[string]string, len(ids))
	for i, id := range ids {
		if parent, ok := records[i][parentProperty].(string); ok {
			parents[id] = parent
		}
	}
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	return func(id string) int {
		depth := 0
		seen := map[string]bool{id: true}
		for {
			parent, ok := parents[id]
			if !ok || !known[parent] || seen[parent] {
				return depth
			}
			seen[parent] = true
			depth++
			id = parent
		}
	}
}
