// Package store provides the SQLite journal backend.
//
// Messages are stored one row each in journal_messages, ordered by an
// autoincrement seq column. Rows are never updated or deleted; replay reads
// them back by ascending seq. The payload column holds the exact JSON line
// the file backend would write, so the two backends are interchangeable.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=FULL: a recorded message is on disk when Record returns
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
