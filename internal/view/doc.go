// Package view provides the keyed View store backing all durable entities.
//
// The View is an ordered key-value map:
//   - Put upserts
//   - Get returns the value or reports absence
//   - Range yields an ascending sequence by byte order over [lo, hi)
//
// There are no deletes. Logical deletion is expressed with status or flag
// fields on the stored entity.
//
// Each replica's View has exactly one writer, the state machine, which
// mutates it through Update so every put of one applied entry commits
// atomically. Readers (router, rule engine) never write.
package view
