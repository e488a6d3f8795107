package eventlog

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/ledger"
)

func alloc(addr ir.Pointer, size, align uint64) ir.Event {
	return ir.Alloc{Request: ir.WithoutBacktrace(ir.NewRegion(addr, size, align))}
}

func free(addr ir.Pointer, size, align uint64) ir.Event {
	return ir.Free{Request: ir.WithoutBacktrace(ir.NewRegion(addr, size, align))}
}

func TestValidate_AllocFreeIsClean(t *testing.T) {
	l := FromEvents([]ir.Event{alloc(0, 2, 1), free(0, 2, 1)})
	assert.Empty(t, l.Validate(nil))
}

func TestValidate_CollectsEveryViolationThenLeaks(t *testing.T) {
	l := FromEvents([]ir.Event{
		alloc(0x100, 16, 8),
		free(0x200, 16, 8),
		alloc(0x30, 16, 8),
		alloc(0x108, 8, 8),
		alloc(0x7, 8, 8),
	})

	got := l.Validate(nil)
	require.Len(t, got, 5)

	kinds := make([]ledger.Kind, len(got))
	for i, v := range got {
		kinds[i] = v.Kind()
	}
	assert.Equal(t, []ledger.Kind{
		ledger.KindMissingFree,
		ledger.KindConflictingAlloc,
		ledger.KindMisalignedAlloc,
		ledger.KindLeaked,
		ledger.KindLeaked,
	}, kinds)

	assert.True(t, ledger.IsLeakedWith(got[3], func(r ir.Region) bool { return r.Address == 0x30 }))
	assert.True(t, ledger.IsLeakedWith(got[4], func(r ir.Region) bool { return r.Address == 0x100 }))
}

func TestValidate_AppendsToExisting(t *testing.T) {
	prior := ledger.MissingFree{Request: ir.WithoutBacktrace(ir.NewRegion(1, 1, 1))}
	l := FromEvents([]ir.Event{alloc(0x10, 8, 8)})

	out := l.Validate([]ledger.Violation{prior})
	require.Len(t, out, 2)
	assert.Equal(t, prior, out[0])
	assert.Equal(t, ledger.KindLeaked, out[1].Kind())
}

func TestValidate_LeakReportedOnce(t *testing.T) {
	events := []ir.Event{alloc(0x1000, 64, 8)}
	for i := 0; i < 50; i++ {
		addr := ir.Pointer(i * 16)
		events = append(events, alloc(addr, 16, 8), free(addr, 16, 8))
	}
	l := FromEvents(events)

	var leaks []ledger.Violation
	for _, v := range l.Validate(nil) {
		if ledger.IsLeak(v) {
			leaks = append(leaks, v)
		}
	}
	require.Len(t, leaks, 1)
	assert.Equal(t, ir.NewRegion(0x1000, 64, 8), leaks[0].Region())
}

func TestValidate_Idempotent(t *testing.T) {
	l := FromEvents([]ir.Event{
		alloc(0x10, 8, 8),
		alloc(0x10, 8, 8),
		free(0x10, 4, 8),
		ir.AllocZeroed{IsZeroed: ir.No, Request: ir.WithoutBacktrace(ir.NewRegion(0x40, 8, 8))},
		ir.ReallocNull{Request: ir.WithoutBacktrace(ir.NewRegion(0x80, 8, 8))},
		alloc(0x100, 32, 16),
	})
	digestBefore, err := l.Digest()
	require.NoError(t, err)

	first := l.Validate(nil)
	second := l.Validate(nil)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Validate is not idempotent (-first +second):\n%s", diff)
	}

	digestAfter, err := l.Digest()
	require.NoError(t, err)
	assert.Equal(t, digestBefore, digestAfter, "validation must not mutate the log")
}

func TestMaxMemoryUsed(t *testing.T) {
	l := FromEvents([]ir.Event{
		alloc(0x10, 0x10, 1),
		alloc(0x20, 0x10, 1),
		free(0x10, 0x10, 1),
	})

	peak, err := l.MaxMemoryUsed()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x20), peak)
}

func TestMaxMemoryUsed_Empty(t *testing.T) {
	peak, err := New().MaxMemoryUsed()
	require.NoError(t, err)
	assert.Zero(t, peak)
}

func TestMaxMemoryUsed_FailsFast(t *testing.T) {
	l := FromEvents([]ir.Event{
		alloc(0x10, 0x10, 1),
		free(0x40, 0x10, 1),
		alloc(0x11, 0x10, 1),
	})

	_, err := l.MaxMemoryUsed()
	require.Error(t, err)

	var missing ledger.MissingFree
	require.True(t, errors.As(err, &missing), "the first violation is returned")
	assert.Equal(t, ir.Pointer(0x40), missing.Request.Region.Address)
}

func TestMaxMemoryUsed_IgnoresLeaks(t *testing.T) {
	l := FromEvents([]ir.Event{alloc(0x10, 0x30, 1)})

	peak, err := l.MaxMemoryUsed()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x30), peak)
}

func TestAudit(t *testing.T) {
	l := FromEvents([]ir.Event{
		alloc(0x10, 0x10, 1),
		ir.AllocZeroed{IsZeroed: ir.Yes, Request: ir.WithoutBacktrace(ir.NewRegion(0x100, 0x40, 1))},
		free(0x40, 0x10, 1),
		ir.Realloc{IsRelocated: ir.Yes, Free: ir.NewRegion(0x100, 0x40, 1), Alloc: ir.WithoutBacktrace(ir.NewRegion(0x200, 0x80, 1))},
		ir.AllocFailed{},
		free(0x10, 0x10, 1),
	})

	rep := l.Audit()
	assert.False(t, rep.Clean())
	assert.Equal(t, 6, rep.Events)
	assert.Equal(t, 2, rep.Allocs)
	assert.Equal(t, 2, rep.Frees)
	assert.Equal(t, 1, rep.Reallocs)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Leaks)
	assert.Equal(t, uint64(0x90), rep.Peak, "tolerant peak continues past the missing free")

	require.Len(t, rep.Violations, 2)
	assert.Equal(t, ledger.KindMissingFree, rep.Violations[0].Kind())
	assert.Equal(t, ledger.KindLeaked, rep.Violations[1].Kind())

	if diff := cmp.Diff(l.Validate(nil), rep.Violations); diff != "" {
		t.Errorf("Audit and Validate disagree (-validate +audit):\n%s", diff)
	}
}
