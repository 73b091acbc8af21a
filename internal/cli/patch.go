package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/recordstore/internal/harness"
	"github.com/roach88/recordstore/patch"
	"github.com/roach88/recordstore/store"
)

// PatchOptions holds flags for the patch command.
type PatchOptions struct {
	*RootOptions
	IDs       []string
	PatchFile string
}

// PatchOutput is the JSON payload of the patch command.
type PatchOutput struct {
	Patched []string         `json:"patched"`
	Failed  []FailureOutput  `json:"failed,omitempty"`
	Records []harness.Record `json:"records"`
}

// FailureOutput is one item a patch could not apply.
type FailureOutput struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// NewPatchCommand creates the patch command.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "patch <records-file>",
		Short: "Apply an RFC 6902 patch to records",
		Long: `Apply a JSON Patch (add, remove, replace and test operations) to the
records with the given identifiers and print the resulting records.

Each identifier is patched independently; a failed item does not stop the
others. The patch file is JSON, YAML or CUE.

Example:
  recstore patch items.yaml --id 1 --id 3 --patch bump.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatch(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.IDs, "id", nil, "identifier of a record to patch (repeatable, required)")
	cmd.Flags().StringVar(&opts.PatchFile, "patch", "", "path to the patch document (required)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("patch")

	return cmd
}

func runPatch(cmd *cobra.Command, opts *PatchOptions, path string) error {
	formatter := opts.formatter(cmd)

	p, err := loadPatch(opts.PatchFile)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Patch: %v", p)

	records, err := LoadRecords(path)
	if err != nil {
		return loadFailure(formatter, err)
	}

	st, err := opts.openStore(cmd, records)
	if err != nil {
		return err
	}
	defer st.Close()

	items := make([]store.PatchItem, len(opts.IDs))
	for i, id := range opts.IDs {
		items[i] = store.PatchItem{ID: id, Patch: p}
	}
	res, err := st.Patch(cmd.Context(), items...).Wait(cmd.Context())
	if err != nil {
		return report(formatter, ErrCodeRejected, ExitFailure, "patch rejected", err)
	}

	all, err := st.Fetch(cmd.Context(), nil).Wait(cmd.Context())
	if err != nil {
		return report(formatter, ErrCodeRejected, ExitFailure, "fetch failed", err)
	}

	out := PatchOutput{Patched: res.SuccessfulIDs, Records: all}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, FailureOutput{ID: f.ID, Error: f.Err.Error()})
	}

	err = formatter.Success(out, func(w io.Writer) error {
		return writeRecords(w, all)
	})
	if err != nil {
		return err
	}
	if len(out.Failed) > 0 {
		for _, f := range out.Failed {
			formatter.VerboseLog("failed %s: %s", f.ID, f.Error)
		}
		return report(formatter, ErrCodeRejected, ExitFailure,
			fmt.Sprintf("%d of %d item(s) failed", len(out.Failed), len(items)), nil)
	}
	return nil
}

// loadPatch reads a patch document in any supported format and decodes it
// through the RFC 6902 reader.
func loadPatch(path string) (patch.Patch, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return patch.Patch{}, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return patch.Patch{}, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
	}
	p, err := patch.Decode(data)
	if err != nil {
		return patch.Patch{}, &LoadError{Code: ErrCodeBadFormat, Path: path, Message: err.Error()}
	}
	return p, nil
}
