// Package journal keeps the audit history of library mutations in SQLite.
//
// Every committed ingest placement, ingest conflict, applied review decision,
// legacy import and store restore is appended as an Event. The journal is
// advisory: callers log and continue when a write fails, the record store
// stays the source of truth.
package journal
