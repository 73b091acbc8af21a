package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/recordstore/internal/harness"
)

// QueryFlags holds the query flags shared by fetch and tree.
type QueryFlags struct {
	Where  string
	Equal  []string
	In     []string
	Sort   []string
	Desc   bool
	Offset int
	Count  int
}

func (q *QueryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.Where, "where", "", "expression over record fields, e.g. 'value > 2'")
	cmd.Flags().StringArrayVar(&q.Equal, "eq", nil, "path=value equality term (repeatable)")
	cmd.Flags().StringArrayVar(&q.In, "in", nil, "path=v1,v2 membership term (repeatable)")
	cmd.Flags().StringArrayVar(&q.Sort, "sort", nil, "sort key path (repeatable, in priority order)")
	cmd.Flags().BoolVar(&q.Desc, "desc", false, "sort descending")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "skip this many records")
	cmd.Flags().IntVar(&q.Count, "count", -1, "return at most this many records (-1 for all)")
}

// Spec converts the flags to a QuerySpec. Values in --eq and --in are read
// as YAML scalars, so 3 is a number and "3" a string.
func (q *QueryFlags) Spec() (*harness.QuerySpec, error) {
	spec := &harness.QuerySpec{Where: q.Where, Offset: q.Offset}
	if q.Count >= 0 {
		count := q.Count
		spec.Count = &count
	}

	for _, term := range q.Equal {
		path, raw, err := splitTerm("eq", term)
		if err != nil {
			return nil, err
		}
		v, err := parseScalar(raw)
		if err != nil {
			return nil, fmt.Errorf("--eq %s: %w", term, err)
		}
		if spec.Equal == nil {
			spec.Equal = map[string]any{}
		}
		spec.Equal[path] = v
	}

	for _, term := range q.In {
		path, raw, err := splitTerm("in", term)
		if err != nil {
			return nil, err
		}
		var values []any
		for _, part := range strings.Split(raw, ",") {
			v, err := parseScalar(part)
			if err != nil {
				return nil, fmt.Errorf("--in %s: %w", term, err)
			}
			values = append(values, v)
		}
		if spec.In == nil {
			spec.In = map[string][]any{}
		}
		spec.In[path] = values
	}

	for _, path := range q.Sort {
		spec.Sort = append(spec.Sort, harness.SortKey{Path: path, Desc: q.Desc})
	}
	return spec, nil
}

func splitTerm(flag, term string) (string, string, error) {
	path, value, ok := strings.Cut(term, "=")
	if !ok || path == "" {
		return "", "", fmt.Errorf("--%s %q: want path=value", flag, term)
	}
	return path, value, nil
}

func parseScalar(raw string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil, fmt.Errorf("%q is not a scalar", raw)
	}
	return v, nil
}

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Query QueryFlags
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <records-file>",
		Short: "Query a record file",
		Long: `Load a record file into a store and print the records matching a query.

The query applies its filter, then its sort, then its range.

Example:
  recstore fetch items.yaml --where 'value > 1' --sort value --desc
  recstore fetch items.json --eq kind=a --offset 1 --count 2 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, args[0])
		},
	}
	opts.Query.register(cmd)

	return cmd
}

func runFetch(cmd *cobra.Command, opts *FetchOptions, path string) error {
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
	formatter.VerboseLog("Loaded %d record(s) from %s", len(records), path)

	st, err := opts.openStore(cmd, records)
	if err != nil {
		return err
	}
	defer st.Close()

	found, err := st.Fetch(cmd.Context(), q).Wait(cmd.Context())
	if err != nil {
		return report(formatter, ErrCodeRejected, ExitFailure, "fetch failed", err)
	}
	formatter.VerboseLog("Query %v matched %d record(s)", q, len(found))

	return formatter.Success(found, func(w io.Writer) error {
		return writeRecords(w, found)
	})
}
