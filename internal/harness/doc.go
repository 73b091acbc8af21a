// Package harness runs store scenarios described in YAML and records a
// deterministic trace of every call.
//
// # Scenario Format
//
//	name: ordered_crud
//	description: "Calls resolve in submission order"
//	backend: memory            # or sqlite (in-memory database)
//	id_property: id            # optional
//	id_prefix: rec             # CreateID yields rec-1, rec-2, ...
//	parent_property: parent    # tree steps only
//	data:
//	  - { id: "1", value: 1 }
//	steps:
//	  - op: put
//	    records: [{ id: "1", value: 2 }]
//	    no_wait: true
//	  - op: get
//	    ids: ["1"]
//	    expect:
//	      ids: ["1"]
//	assertions:
//	  - type: trace_order
//	    ops: [put, get]
//	  - type: final_state
//	    where: { id: "1" }
//	    expect: { value: 2 }
//
// # Step Operations
//
//   - add, put: records, optional reject_overwrite
//   - patch: id plus an RFC 6902 patch list
//   - delete, get: ids
//   - fetch: optional query (equal, in, where, sort, offset, count)
//   - create_id
//   - expand, collapse: ids of the scenario's tree view
//   - tree_fetch: fetch through the tree view, optional query
//   - children: id of the parent record
//
// A step normally waits for its call to settle. With no_wait the call is
// submitted and collected later, so several calls can be in flight at once;
// the trace is still written in submission order.
//
// # Assertion Types
//
//   - trace_order: ops appear in the trace in the given order
//   - trace_count: op appears exactly count times
//   - final_state: exactly one stored record matches where, and it contains expect
//   - final_count: count records match where (all records when where is empty)
//
// # Deterministic Testing
//
// Generated identifiers come from a storage.SequenceGenerator and every call
// carries the store's logical sequence number, so a scenario always produces
// the same trace. RunWithGolden compares that trace, serialized as canonical
// JSON, against testdata/golden/{name}.golden.
package harness
