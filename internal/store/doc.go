// Package store provides SQLite-backed durable storage for recorded
// measurement windows.
//
// A window is an immutable, ordered list of allocation events. Windows are
// content addressed: the digest column holds ir.WindowDigest of the events
// and is UNIQUE, so writing the same events twice returns the window that
// is already stored.
//
// # Ordering
//
//   - Windows are ordered by created_seq, a logical counter assigned on write
//   - Events are ordered by seq, their position in the window
//   - Wall-clock time is never stored
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Events are deleted with their window
package store
