// Package storage keeps a journal of finished task runs so they survive
// restarts and can be listed by the history command.
//
// Drivers:
//   - file: append-only JSON Lines, compacted when a retain limit is set
//   - sqlite: SQLite database (build with -tags sqlite)
package storage
