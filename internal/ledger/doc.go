// Package ledger provides the append-only replicated log primitive.
//
// The log is the only ordering authority: every reader observes committed
// entries in the same linear seq order. Consensus and replication are out
// of scope here; Memory serves a single process and SQLite serves every
// process sharing the database file.
//
// Appends are idempotent on the entry id: re-submitting an envelope that
// was already committed returns the original receipt.
//
// Payloads are stored as RFC 8785 canonical JSON so the bytes a replica
// reads back are the bytes that were hashed into the entry id.
package ledger
