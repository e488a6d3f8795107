package track

import (
	"log/slog"

	"github.com/roach88/allocaudit/internal/eventlog"
	"github.com/roach88/allocaudit/internal/ir"
)

// Tracker gates event capture for a single writer.
//
// Two pieces of state decide whether an event is kept: the enabled flag,
// toggled by Enable for the length of a window, and the suspension count,
// raised by Suspend around the tracker's own bookkeeping. Both return a
// restore func meant for defer.
//
// A Tracker is not safe for concurrent use. Give each goroutine its own.
type Tracker struct {
	log     *eventlog.Log
	ids     IDGenerator
	enabled bool
	muted   int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*trackerConfig)

type trackerConfig struct {
	ids      IDGenerator
	capacity int
}

// WithIDGenerator sets the window ID source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) TrackerOption {
	return func(c *trackerConfig) {
		c.ids = g
	}
}

// WithCapacity reserves room for n events up front so short windows never
// grow the log.
func WithCapacity(n int) TrackerOption {
	return func(c *trackerConfig) {
		c.capacity = n
	}
}

// NewTracker creates a disabled tracker with an empty log.
func NewTracker(opts ...TrackerOption) *Tracker {
	cfg := trackerConfig{ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Tracker{ids: cfg.ids}
	t.log = eventlog.New(eventlog.WithSuspender(t), eventlog.WithCapacity(cfg.capacity))
	return t
}

// Enable turns recording on until the returned func is called, which
// restores the previous setting.
func (t *Tracker) Enable() (restore func()) {
	prev := t.enabled
	t.enabled = true
	return func() { t.enabled = prev }
}

// Suspend ignores every event until the returned func is called. Scopes
// nest.
func (t *Tracker) Suspend() (restore func()) {
	t.muted++
	return func() { t.muted-- }
}

// Enabled reports whether a window is open.
func (t *Tracker) Enabled() bool { return t.enabled }

// Muted reports whether recording is currently suspended.
func (t *Tracker) Muted() bool { return t.muted > 0 }

// Active reports whether the next event would be recorded.
func (t *Tracker) Active() bool { return t.enabled && t.muted == 0 }

// Record appends e to the log if the tracker is active and reports whether
// it did.
func (t *Tracker) Record(e ir.Event) bool {
	if !t.Active() {
		return false
	}
	t.log.Push(e)
	return true
}

// Reserve pre-grows the log by n events.
func (t *Tracker) Reserve(n int) {
	t.log.Reserve(n)
}

// Log returns the live log. With takes events back out of it once the
// outermost window closes.
func (t *Tracker) Log() *eventlog.Log { return t.log }

// Snapshot is a closed measurement window.
type Snapshot struct {
	ID  string
	Log *eventlog.Log
}

// Snapshot copies the events recorded so far into a new window.
func (t *Tracker) Snapshot() *Snapshot {
	return t.snapshotFrom(0)
}

func (t *Tracker) snapshotFrom(start int) *Snapshot {
	return &Snapshot{
		ID:  t.ids.Generate(),
		Log: eventlog.FromEvents(t.log.Events()[start:]),
	}
}

// With runs fn inside a window and returns the events recorded while it
// ran. Windows nest: an inner window's events stay in the live log so the
// enclosing window sees them too. When no window was open on entry the log
// is truncated back to where it started. If fn panics the previous enabled
// state is restored and the panic propagates.
func (t *Tracker) With(fn func()) *Snapshot {
	start := t.log.Len()
	outermost := !t.enabled
	func() {
		restore := t.Enable()
		defer restore()
		fn()
	}()

	snap := t.snapshotFrom(start)
	if outermost {
		t.log.Truncate(start)
	}

	slog.Debug("window closed",
		"window", snap.ID,
		"events", snap.Log.Len(),
		"nested", !outermost,
	)
	return snap
}
