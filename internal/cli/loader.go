package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/recordstore/internal/harness"
)

// LoadError represents an error that occurred while loading a document.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
}

// LoadDocument reads a YAML, JSON or CUE file, selected by extension, into
// plain Go values.
func LoadDocument(path string) (any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: "file not found"}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: err.Error()}
	}

	var doc any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: fmt.Sprintf("parsing JSON: %v", err)}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: fmt.Sprintf("parsing YAML: %v", err)}
		}
	case ".cue":
		return loadCUE(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeBadFormat, Path: path, Message: fmt.Sprintf("unsupported extension %q (want .yaml, .yml, .json or .cue)", ext)}
	}
	return doc, nil
}

func loadCUE(path string, data []byte) (any, error) {
	value := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, cueLoadError(path, "building CUE value", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(path, "CUE value is not concrete", err)
	}
	var doc any
	if err := value.Decode(&doc); err != nil {
		return nil, cueLoadError(path, "decoding CUE value", err)
	}
	return doc, nil
}

func cueLoadError(path, message string, err error) *LoadError {
	loadErr := &LoadError{Code: ErrCodeLoadFailed, Path: path, Message: fmt.Sprintf("%s: %v", message, err)}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		loadErr.Pos = positions[0]
	}
	return loadErr
}

// LoadRecords reads a record file. The document is either a list of
// objects or an object whose "records" field is one.
func LoadRecords(path string) ([]harness.Record, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	if obj, ok := doc.(map[string]any); ok {
		list, found := obj["records"]
		if !found {
			return nil, &LoadError{Code: ErrCodeBadFormat, Path: path, Message: `object documents need a "records" list`}
		}
		doc = list
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, &LoadError{Code: ErrCodeBadFormat, Path: path, Message: fmt.Sprintf("expected a list of records, got %T", doc)}
	}

	records := make([]harness.Record, len(list))
	for i, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, &LoadError{Code: ErrCodeBadFormat, Path: path, Message: fmt.Sprintf("record %d: expected an object, got %T", i, item)}
		}
		records[i] = rec
	}
	return records, nil
}

// loadFailure reports a loader error and converts it to an ExitError.
func loadFailure(f *OutputFormatter, err error) error {
	code := ErrCodeLoadFailed
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
	}
	return report(f, code, ExitCommandError, "failed to load file", err)
}
