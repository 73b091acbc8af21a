package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recordstore/internal/testutil"
)

// Record is the record type scenarios operate on.
type Record = map[string]any

// Scenario defines one store scenario: initial data, a list of calls and
// assertions over the trace and the final stored records.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects the storage backend: "memory" (default) or "sqlite".
	Backend string `yaml:"backend,omitempty"`

	// IDProperty is the identifier property. Default: "id".
	IDProperty string `yaml:"id_property,omitempty"`

	// IDPrefix prefixes generated identifiers. Default: "id".
	IDPrefix string `yaml:"id_prefix,omitempty"`

	// ParentProperty is the tree view's parent property. Default: "parent".
	ParentProperty string `yaml:"parent_property,omitempty"`

	// Delays slows backend operations by the given milliseconds, keyed by
	// backend operation: get, add, put, delete, fetch, createId.
	Delays map[string]int `yaml:"delays_ms,omitempty"`

	// Data is added by the store's implicit initial Add.
	Data []Record `yaml:"data,omitempty"`

	// Steps are submitted to the store in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one call against the store or its tree view.
type Step struct {
	Op string `yaml:"op"`

	// Records for add and put.
	Records []Record `yaml:"records,omitempty"`

	// RejectOverwrite overrides the add/put default when set.
	RejectOverwrite *bool `yaml:"reject_overwrite,omitempty"`

	// ID is the patched record (patch) or the parent record (children).
	ID string `yaml:"id,omitempty"`

	// Patch is an RFC 6902 operation list.
	Patch []map[string]any `yaml:"patch,omitempty"`

	// IDs for delete, get, expand and collapse.
	IDs []string `yaml:"ids,omitempty"`

	// Query for fetch and tree_fetch.
	Query *QuerySpec `yaml:"query,omitempty"`

	// NoWait submits the call without waiting for it to settle.
	NoWait bool `yaml:"no_wait,omitempty"`

	// Expect, when set, is checked against the step's trace event.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a step's expected outcome. Unset fields are not checked.
type Expect struct {
	// Error is the expected error code (e.g. "CONFLICT"), or "" for success.
	Error string `yaml:"error,omitempty"`

	// IDs are the affected or returned identifiers, in order.
	IDs []string `yaml:"ids,omitempty"`

	// Failed are the identifiers reported as per-item failures.
	Failed []string `yaml:"failed,omitempty"`
}

// Assertion validates the trace or the final stored records.
type Assertion struct {
	// Type is one of trace_order, trace_count, final_state, final_count.
	Type string `yaml:"type"`

	// Op is the step operation (trace_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number of occurrences or records.
	Count int `yaml:"count,omitempty"`

	// Where selects records by property equality (final_state, final_count).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is a subset of the selected record (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Step operation names.
const (
	OpAdd       = "add"
	OpPut       = "put"
	OpPatch     = "patch"
	OpDelete    = "delete"
	OpGet       = "get"
	OpFetch     = "fetch"
	OpCreateID  = "create_id"
	OpExpand    = "expand"
	OpCollapse  = "collapse"
	OpTreeFetch = "tree_fetch"
	OpChildren  = "children"

	// OpData is the trace name of the implicit initial Add.
	OpData = "data"
)

// Assertion type constants.
const (
	AssertTraceOrder = "trace_order"
	AssertTraceCount = "trace_count"
	AssertFinalState = "final_state"
	AssertFinalCount = "final_count"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

var delayOps = []string{
	testutil.OpGet, testutil.OpAdd, testutil.OpPut,
	testutil.OpDelete, testutil.OpFetch, testutil.OpCreateID,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Backend {
	case "", BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	for op, ms := range s.Delays {
		if !slices.Contains(delayOps, op) {
			return fmt.Errorf("delays_ms: unknown backend operation %q", op)
		}
		if ms < 0 {
			return fmt.Errorf("delays_ms: %s must be non-negative", op)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	switch step.Op {
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	case OpAdd, OpPut:
		if len(step.Records) == 0 {
			return fmt.Errorf("steps[%d]: records are required for %s", index, step.Op)
		}
	case OpPatch:
		if step.ID == "" || len(step.Patch) == 0 {
			return fmt.Errorf("steps[%d]: id and patch are required for patch", index)
		}
	case OpDelete, OpGet, OpExpand, OpCollapse:
		if len(step.IDs) == 0 {
			return fmt.Errorf("steps[%d]: ids are required for %s", index, step.Op)
		}
	case OpChildren:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for children", index)
		}
	case OpFetch, OpTreeFetch, OpCreateID:
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	if step.Query != nil && step.Op != OpFetch && step.Op != OpTreeFetch {
		return fmt.Errorf("steps[%d]: query is only valid for fetch and tree_fetch", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertFinalCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for final_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
