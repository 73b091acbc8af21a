package harness

// TraceEvent records the outcome of one step.
type TraceEvent struct {
	// Step is the step's index; the implicit initial Add is step -1.
	Step int    `json:"step"`
	Op   string `json:"op"`

	// Seq is the call's sequence number, for successful Add, Put, Patch
	// and Delete calls.
	Seq int64 `json:"seq,omitempty"`

	// IDs are the identifiers the call affected or returned.
	IDs []string `json:"ids,omitempty"`

	// Failed are the identifiers reported as per-item failures.
	Failed []string `json:"failed,omitempty"`

	// Error is the error code of a rejected call.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in submission order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the stored records after the last step, in storage order.
	State []Record `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for scenario execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  []Record{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
