// Package ledger replays allocation events and reports every breach of the
// allocation contract.
//
// The Ledger is a pure fold over an event sequence. Its accumulator is the
// set of live regions keyed by address, plus the number of bytes currently
// in use. Each Push either applies the event or returns one Violation, and
// it never panics. A rejected event leaves the ledger untouched, with one
// exception: a Realloc whose alloc half is rejected keeps its free applied.
//
// Rules:
//   - Alloc checks alignment, then overlap with both address-order neighbours
//   - Free must match a live region's address, size and alignment exactly
//   - AllocZeroed and Realloc whose external check failed are not applied
//   - failed requests are inert
//
// After the last event, TrailingRegions lists the leaks in address order.
//
// A Ledger is single-writer. Build a fresh one per replay.
package ledger
