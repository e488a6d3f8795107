package track

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/ledger"
)

// faultyAllocator breaks the contracts the ledger cannot see from addresses:
// zeroed blocks come back dirty and grown blocks lose their contents.
type faultyAllocator struct {
	*GoAllocator
}

func (a faultyAllocator) AllocateZeroed(layout Layout) []byte {
	b := a.GoAllocator.Allocate(layout)
	if len(b) > 0 {
		b[0] = 0xff
	}
	return b
}

func (a faultyAllocator) Reallocate(b []byte, layout Layout, newSize int) []byte {
	grown := a.GoAllocator.Allocate(Layout{Size: newSize, Align: layout.Align})
	if grown == nil {
		return nil
	}
	a.GoAllocator.Free(b, layout)
	return grown
}

func kinds(vs []ledger.Violation) []ledger.Kind {
	out := make([]ledger.Kind, len(vs))
	for i, v := range vs {
		out[i] = v.Kind()
	}
	return out
}

func TestInstrumented_CleanWindow(t *testing.T) {
	tr := newTestTracker()
	a := NewInstrumented(NewGoAllocator(), tr, WithFingerprints())
	small := Layout{Size: 24, Align: 8}

	snap := tr.With(func() {
		b := a.Allocate(small)
		copy(b, "hello, allocation auditor")
		b = a.Reallocate(b, small, 128)
		z := a.AllocateZeroed(Layout{Size: 64, Align: 64})
		a.Free(z, Layout{Size: 64, Align: 64})
		a.Free(b, Layout{Size: 128, Align: 8})
	})

	assert.Equal(t, 5, snap.Log.Len())
	assert.Equal(t, 2, snap.Log.Allocs())
	assert.Equal(t, 2, snap.Log.Frees())
	assert.Equal(t, 1, snap.Log.Reallocs())
	assert.Empty(t, snap.Log.Validate(nil))

	realloc, ok := snap.Log.Events()[1].(ir.Realloc)
	require.True(t, ok)
	assert.Equal(t, ir.Yes, realloc.IsRelocated)

	zeroed, ok := snap.Log.Events()[2].(ir.AllocZeroed)
	require.True(t, ok)
	assert.Equal(t, ir.Yes, zeroed.IsZeroed)
	assert.True(t, zeroed.Request.Region.Address.IsAlignedWith(64))

	peak, err := snap.Log.MaxMemoryUsed()
	require.NoError(t, err)
	assert.Equal(t, uint64(192), peak)
}

func TestInstrumented_ReportsLeak(t *testing.T) {
	tr := newTestTracker()
	a := NewInstrumented(NewGoAllocator(), tr)

	var kept []byte
	snap := tr.With(func() {
		kept = a.Allocate(Layout{Size: 42, Align: 4})
	})
	require.NotNil(t, kept)

	violations := snap.Log.Validate(nil)
	require.Len(t, violations, 1)
	assert.True(t, ledger.IsLeakedWith(violations[0], func(r ir.Region) bool {
		return r.Size == 42 && r.Align == 4 && r.Address == AddressOf(kept)
	}))
}

func TestInstrumented_DoubleFree(t *testing.T) {
	tr := newTestTracker()
	a := NewInstrumented(NewGoAllocator(), tr)
	layout := Layout{Size: 16, Align: 8}

	snap := tr.With(func() {
		b := a.Allocate(layout)
		a.Free(b, layout)
		a.Free(b, layout)
	})

	assert.Equal(t, []ledger.Kind{ledger.KindMissingFree}, kinds(snap.Log.Validate(nil)))
}

func TestInstrumented_DetectsBrokenContracts(t *testing.T) {
	tr := newTestTracker()
	a := NewInstrumented(faultyAllocator{NewGoAllocator()}, tr, WithFingerprints())
	layout := Layout{Size: 32, Align: 8}

	snap := tr.With(func() {
		z := a.AllocateZeroed(layout)
		b := a.Allocate(layout)
		copy(b, "payload that must survive")
		b = a.Reallocate(b, layout, 64)
		_ = z
		_ = b
	})

	got := kinds(snap.Log.Validate(nil))
	assert.Equal(t, []ledger.Kind{
		ledger.KindNonZeroedAlloc,
		ledger.KindNonCopiedRealloc,
		ledger.KindLeaked,
	}, got)
}

func TestInstrumented_UnknownRelocationWithoutFingerprints(t *testing.T) {
	tr := newTestTracker()
	a := NewInstrumented(faultyAllocator{NewGoAllocator()}, tr)
	layout := Layout{Size: 32, Align: 8}

	snap := tr.With(func() {
		b := a.Allocate(layout)
		b = a.Reallocate(b, layout, 64)
		a.Free(b, Layout{Size: 64, Align: 8})
	})

	realloc, ok := snap.Log.Events()[1].(ir.Realloc)
	require.True(t, ok)
	assert.Equal(t, ir.Unknown, realloc.IsRelocated)
	assert.Empty(t, snap.Log.Validate(nil), "an unchecked relocation is trusted")
}

func TestInstrumented_FailedRequests(t *testing.T) {
	tr := newTestTracker()
	a := NewInstrumented(NewLimitedGoAllocator(64), tr)
	layout := Layout{Size: 48, Align: 8}

	snap := tr.With(func() {
		b := a.Allocate(layout)
		assert.Nil(t, a.Allocate(layout))
		assert.Nil(t, a.AllocateZeroed(layout))
		assert.Nil(t, a.Reallocate(b, layout, 128))
		assert.Nil(t, a.Reallocate(nil, layout, 8))
		a.Free(b, layout)
	})

	assert.Equal(t, []ir.Kind{
		ir.KindAlloc,
		ir.KindAllocFailed,
		ir.KindAllocZeroedFailed,
		ir.KindReallocFailed,
		ir.KindReallocNull,
		ir.KindFree,
	}, eventKinds(snap.Log.Events()))

	assert.Equal(t, []ledger.Kind{ledger.KindReallocNull}, kinds(snap.Log.Validate(nil)),
		"failed requests are inert")
}

func TestInstrumented_InactiveTrackerRecordsNothing(t *testing.T) {
	tr := newTestTracker()
	a := NewInstrumented(NewGoAllocator(), tr, WithFingerprints())
	layout := Layout{Size: 8, Align: 8}

	b := a.Allocate(layout)
	b = a.Reallocate(b, layout, 16)
	a.Free(b, Layout{Size: 16, Align: 8})

	assert.Zero(t, tr.Log().Len())
}

func TestInstrumented_Backtraces(t *testing.T) {
	tr := newTestTracker()
	a := NewInstrumented(NewGoAllocator(), tr, WithBacktraces(8))
	layout := Layout{Size: 8, Align: 8}

	snap := tr.With(func() {
		a.Free(a.Allocate(layout), layout)
	})

	alloc, ok := snap.Log.Events()[0].(ir.Alloc)
	require.True(t, ok)
	require.NotEmpty(t, alloc.Request.Backtrace)
	assert.LessOrEqual(t, len(alloc.Request.Backtrace), 8)

	found := false
	for _, frame := range alloc.Request.Backtrace {
		if strings.Contains(frame, "TestInstrumented_Backtraces") {
			found = true
		}
		assert.NotContains(t, frame, "captureBacktrace")
		assert.NotContains(t, frame, "(*Instrumented)", "allocator frames are skipped")
	}
	assert.True(t, found, "backtrace reaches the caller: %v", alloc.Request.Backtrace)
	assert.False(t, tr.Muted())
}

func TestInstrumented_BacktracePanicReleasesSuspension(t *testing.T) {
	orig := capture
	t.Cleanup(func() { capture = orig })
	capture = func(int, int) ir.Backtrace { panic("stack walk failed") }

	tr := newTestTracker()
	a := NewInstrumented(NewGoAllocator(), tr, WithBacktraces(8))

	assert.PanicsWithValue(t, "stack walk failed", func() {
		tr.With(func() {
			a.Allocate(Layout{Size: 8, Align: 8})
		})
	})
	assert.False(t, tr.Muted(), "suspension is released on panic")
	assert.False(t, tr.Enabled())
}

func eventKinds(events []ir.Event) []ir.Kind {
	out := make([]ir.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}
