package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/allocaudit/internal/eventlog"
	"github.com/roach88/allocaudit/internal/ir"
)

func newTestTracker(ids ...string) *Tracker {
	if len(ids) == 0 {
		ids = []string{"window-1", "window-2", "window-3"}
	}
	return NewTracker(WithIDGenerator(NewFixedGenerator(ids...)))
}

var sampleAlloc = ir.Alloc{Request: ir.WithoutBacktrace(ir.NewRegion(0x10, 8, 8))}

func TestTracker_RecordsOnlyWhenEnabled(t *testing.T) {
	tr := newTestTracker()

	assert.False(t, tr.Record(sampleAlloc), "disabled by default")
	assert.Zero(t, tr.Log().Len())

	restore := tr.Enable()
	assert.True(t, tr.Enabled())
	assert.True(t, tr.Record(sampleAlloc))
	restore()

	assert.False(t, tr.Enabled())
	assert.False(t, tr.Record(sampleAlloc))
	assert.Equal(t, 1, tr.Log().Len())
}

func TestTracker_SuspendNests(t *testing.T) {
	tr := newTestTracker()
	defer tr.Enable()()

	outer := tr.Suspend()
	inner := tr.Suspend()
	assert.True(t, tr.Muted())
	assert.False(t, tr.Record(sampleAlloc))

	inner()
	assert.True(t, tr.Muted(), "outer scope still holds")
	assert.False(t, tr.Record(sampleAlloc))

	outer()
	assert.False(t, tr.Muted())
	assert.True(t, tr.Record(sampleAlloc))
	assert.Equal(t, 1, tr.Log().Len())
}

func TestTracker_EnableRestoresPreviousState(t *testing.T) {
	tr := newTestTracker()

	outer := tr.Enable()
	inner := tr.Enable()
	inner()
	assert.True(t, tr.Enabled(), "inner restore returns to the enclosing window")
	outer()
	assert.False(t, tr.Enabled())
}

func TestTracker_With(t *testing.T) {
	tr := newTestTracker()

	snap := tr.With(func() {
		tr.Record(sampleAlloc)
		tr.Record(ir.Free{Request: sampleAlloc.Request})
	})

	assert.Equal(t, "window-1", snap.ID)
	assert.Equal(t, 2, snap.Log.Len())
	assert.Empty(t, snap.Log.Validate(nil))

	assert.False(t, tr.Enabled(), "tracking is off after the window")
	assert.Zero(t, tr.Log().Len(), "the live log is cleared for the next window")
}

func TestTracker_WithStartsEmpty(t *testing.T) {
	tr := newTestTracker()
	restore := tr.Enable()
	tr.Record(sampleAlloc)
	restore()

	snap := tr.With(func() {})
	assert.Zero(t, snap.Log.Len(), "events from before the window are not part of it")
	assert.Equal(t, 1, tr.Log().Len(), "the window leaves earlier events alone")
}

func TestTracker_WithNests(t *testing.T) {
	tr := newTestTracker()
	free := ir.Free{Request: sampleAlloc.Request}

	var inner *Snapshot
	outer := tr.With(func() {
		tr.Record(sampleAlloc)
		inner = tr.With(func() {
			tr.Record(free)
		})
		assert.True(t, tr.Enabled(), "closing the inner window keeps the outer one open")
	})

	assert.Equal(t, "window-1", inner.ID)
	assert.Equal(t, []ir.Event{free}, inner.Log.Events())

	assert.Equal(t, "window-2", outer.ID)
	assert.Equal(t, []ir.Event{sampleAlloc, free}, outer.Log.Events())
	assert.Empty(t, outer.Log.Validate(nil))

	assert.False(t, tr.Enabled())
	assert.Zero(t, tr.Log().Len())
}

func TestTracker_WithRestoresOnPanic(t *testing.T) {
	tr := newTestTracker()

	assert.PanicsWithValue(t, "boom", func() {
		tr.With(func() {
			tr.Record(sampleAlloc)
			panic("boom")
		})
	})
	assert.False(t, tr.Enabled())
	assert.False(t, tr.Muted())
}

// growthRecorder stands in for a log's suspender and tries to record from
// inside every growth step, the way an instrumented allocator would.
type growthRecorder struct {
	tr       *Tracker
	grows    int
	recorded int
}

func (p *growthRecorder) Suspend() func() {
	restore := p.tr.Suspend()
	p.grows++
	if p.tr.Record(sampleAlloc) {
		p.recorded++
	}
	return restore
}

func TestTracker_LogGrowthIsNotRecorded(t *testing.T) {
	tr := newTestTracker()
	defer tr.Enable()()

	rec := &growthRecorder{tr: tr}
	log := eventlog.New(eventlog.WithSuspender(rec))
	for i := 0; i < 40; i++ {
		log.Push(sampleAlloc)
	}

	assert.Equal(t, 3, rec.grows)
	assert.Zero(t, rec.recorded, "records made during growth are dropped")
	assert.Zero(t, tr.Log().Len())
	assert.False(t, tr.Muted(), "suspension is released after every growth step")
}

func TestTracker_Reserve(t *testing.T) {
	tr := NewTracker(WithCapacity(32))
	assert.GreaterOrEqual(t, tr.Log().Cap(), 32)

	tr.Reserve(100)
	assert.GreaterOrEqual(t, tr.Log().Cap(), 100)
}

func TestTracker_DefaultIDsAreUUIDv7(t *testing.T) {
	snap := NewTracker().With(func() {})
	assert.Len(t, snap.ID, 36)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestTracker_IsLogSuspender(t *testing.T) {
	tr := newTestTracker()
	restore := tr.Enable()
	defer restore()

	for i := 0; i < 16; i++ {
		require.True(t, tr.Record(sampleAlloc))
	}
	assert.False(t, tr.Muted())
	assert.Equal(t, 16, tr.Log().Len())
}
