// Package ir provides the canonical value representation for log entries.
//
// Every committed entry is encoded as an Object and serialized with
// MarshalCanonical before hashing or storage, so two replicas that see the
// same entry derive byte-identical payloads and ids.
//
// Key constraints:
//   - No float types anywhere. Money travels as decimal strings.
//   - Timestamps are submitter-supplied Int milliseconds, never the applying
//     replica's clock.
//   - ir imports nothing internal.
package ir
