// Package review implements the detect, annotate and apply workflow.
//
// Detect scans the record store for one category of problem and writes a
// proposal file. A human edits the proposal, filling in suggested_* fields
// and a decision per entry. Apply validates every entry against the current
// store, rejects stale or malformed ones, stages the accepted mutations on a
// copy of the store, performs the file moves and replaces the store in one
// atomic write. A failure before that write undoes the moves of the run.
//
// Detect never mutates the store and is deterministic: the same store yields
// a byte-identical proposal. Apply skips entries that are already applied, so
// re-running it on a committed proposal changes nothing.
package review
