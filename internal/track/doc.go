// Package track captures allocation events from instrumented code into an
// event log.
//
// A Tracker owns the log for one goroutine's measurement windows. Events
// are recorded only while the tracker is enabled and not suspended; the log
// suspends the tracker around its own growth so bookkeeping never shows up
// in a window.
//
// Instrumented wraps any Allocator and reports each request to a Tracker,
// including the zeroed and relocated checks the ledger cannot perform from
// addresses alone.
//
// Usage:
//
//	tr := track.NewTracker()
//	alloc := track.NewInstrumented(track.NewGoAllocator(), tr)
//	snap := tr.With(func() {
//		b := alloc.Allocate(track.Layout{Size: 64, Align: 8})
//		alloc.Free(b, track.Layout{Size: 64, Align: 8})
//	})
//	violations := snap.Log.Validate(nil)
package track
