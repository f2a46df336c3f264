// Package router is the single entry point for marketplace commands.
//
// Mutating commands are validated for shape only, encoded as one log entry
// and appended; success means durably submitted, not applied. Ownership is
// never checked here: the contract checks it at apply time from the
// submitting identity. After submission the router publishes the matching
// notification. Queries read the local View directly.
//
// Every command produces a Reply; the router never panics on bad input.
package router
