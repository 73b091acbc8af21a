package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/recordstore/internal/ir"
	"github.com/roach88/recordstore/query"
	"github.com/roach88/recordstore/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s ids=%v", event.Step, event.Op, event.IDs)
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%s", event.Error)
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, op := range assertion.Ops {
		found := false
		for pos < len(trace) {
			pos++
			if trace[pos-1].Op == op {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual:   fmt.Sprintf("%s not found after position %d", op, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the op appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// selectRecords fetches the records whose properties equal where, through
// the store so the backend's filter pushdown is exercised.
func selectRecords(ctx context.Context, st *store.Store[Record], where map[string]any) ([]Record, error) {
	f := query.NewFilter[Record]()
	for _, key := range sortedKeys(where) {
		f = f.EqualTo(key, where[key])
	}
	if err := f.Err(); err != nil {
		return nil, err
	}
	return waitFor(ctx, 5*time.Second, st.Fetch(ctx, f))
}

// assertFinalState checks that exactly one stored record matches where and
// that it contains every expected field (subset semantics).
func assertFinalState(ctx context.Context, st *store.Store[Record], assertion Assertion) error {
	records, err := selectRecords(ctx, st, assertion.Where)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("fetch where %s", formatWhere(assertion.Where)),
			Actual:   fmt.Sprintf("fetch error: %v", err),
		}
	}

	switch len(records) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record where %s", formatWhere(assertion.Where)),
			Actual:   "record not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one record where %s", formatWhere(assertion.Where)),
			Actual:   fmt.Sprintf("%d records matched (assertion is ambiguous)", len(records)),
		}
	}

	actual := records[0]
	for _, key := range sortedKeys(assertion.Expect) {
		expected := assertion.Expect[key]
		value, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in record %v", key, actual),
			}
		}
		if !valuesEqual(value, expected) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, value, value),
			}
		}
	}
	return nil
}

// assertFinalCount checks how many stored records match where.
func assertFinalCount(ctx context.Context, st *store.Store[Record], assertion Assertion) error {
	records, err := selectRecords(ctx, st, assertion.Where)
	if err != nil {
		return fmt.Errorf("final_count: %w", err)
	}
	if len(records) != assertion.Count {
		return &AssertionError{
			Type:     AssertFinalCount,
			Expected: fmt.Sprintf("%d records where %s", assertion.Count, formatWhere(assertion.Where)),
			Actual:   fmt.Sprintf("%d records", len(records)),
		}
	}
	return nil
}

// formatWhere creates a human-readable description of where conditions.
func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// valuesEqual compares two values structurally through the IR, so YAML
// ints, JSON floats and stored numbers compare by value.
func valuesEqual(actual, expected any) bool {
	a, err := ir.FromGo(actual)
	if err != nil {
		return false
	}
	b, err := ir.FromGo(expected)
	if err != nil {
		return false
	}
	return ir.Equal(a, b)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store[Record]
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state and final_count.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertFinalCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires store context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertFinalCount(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
