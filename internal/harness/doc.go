// Package harness runs multi-peer marketplace scenarios against one shared
// in-memory log.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: negotiation
//	description: "Counter then accept closes one deal"
//	flow:
//	  - as: alice
//	    command: { op: listing_post, title: Lamp, price: "100" }
//	    expect: { ok: true, applied: true, key: LST-001 }
//	  - as: bob
//	    command: { op: offer_send, listing_id: LST-001, amount: "80" }
//	    expect: { applied: true, key: "LST-001:OFR-001" }
//	assertions:
//	  - type: trace_order
//	    ops: [listing_post, offer_send]
//	  - type: final_state
//	    key: LST-001
//	    expect: { status: active }
//
// Every step is routed as the named peer. Mutating commands are applied
// before the next step runs, so the trace is the ordered list of receipts.
//
// # Assertion Types
//
//   - trace_contains: an entry with the given op (and optional submitter,
//     applied, reason) is in the trace
//   - trace_order: ops appear in the given order
//   - trace_count: op appears exactly count times
//   - final_state: the View value at key contains the expected fields
//   - final_count: exactly count View keys start with prefix
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
