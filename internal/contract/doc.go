// Package contract implements the marketplace state machine.
//
// The contract consumes committed log entries one at a time, in log order,
// and deterministically mutates the View. Apply is a pure function of the
// ordered entries and the current View:
//
//   - every entry carries an explicit op tag, the submitter identity and a
//     submitter-supplied timestamp, never the applying replica's clock
//   - ids are allocated from committed counter keys (seq:*) mutated in the
//     same transaction as the entity they name
//   - ownership and state guards are evaluated here, from the authenticated
//     submitter; a failed guard is a silent no-op
//   - a malformed entry is skipped with no effect other than its receipt
//
// Replica owns the single-writer loop: it reads the log from the committed
// cursor (meta:applied) and applies each entry in its own View transaction,
// so a restart resumes exactly where the last commit left off.
package contract
