// Package session defines the Store contract for durable session/run
// persistence and ships an in-memory and a file-backed implementation.
// A SQLite-backed implementation lives in the sqlite subpackage to keep
// the driver dependency out of the default import graph.
//
// Stores never create sessions implicitly: appending a run to an unknown
// session fails with core.ErrSessionNotFound. Every mutation refreshes
// the session's UpdatedAt.
package session
