// Package eventlog buffers allocation events for one measurement window and
// replays them through a ledger.
//
// The log may be filled from inside instrumented code, so growing its own
// backing array is itself an allocation. Every growth step runs inside the
// Suspender's scope so the collaborator that feeds the log can ignore it.
package eventlog

import (
	"github.com/roach88/allocaudit/internal/ir"
)

// minGrowth is the capacity of the first backing array.
const minGrowth = 16

// Suspender pauses allocation tracking. The returned func restores the
// previous state and must be called exactly once.
type Suspender interface {
	Suspend() (restore func())
}

type noopSuspender struct{}

func (noopSuspender) Suspend() func() { return func() {} }

// Option configures a Log.
type Option func(*Log)

// WithSuspender sets the collaborator told to ignore the log's own growth.
func WithSuspender(s Suspender) Option {
	return func(l *Log) {
		l.suspender = s
	}
}

// WithCapacity pre-sizes the log.
func WithCapacity(n int) Option {
	return func(l *Log) {
		l.initialCap = n
	}
}

// Log is an ordered, append-only sequence of events.
// It is not safe for concurrent use.
type Log struct {
	events     []ir.Event
	suspender  Suspender
	initialCap int
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{suspender: noopSuspender{}}
	for _, opt := range opts {
		opt(l)
	}
	if l.initialCap > 0 {
		l.Reserve(l.initialCap)
	}
	return l
}

// FromEvents creates a log holding a copy of events.
func FromEvents(events []ir.Event, opts ...Option) *Log {
	l := New(opts...)
	l.Reserve(len(events))
	l.events = append(l.events, events...)
	return l
}

// Push appends an event. When the log is full the backing array is grown
// under the suspender first.
func (l *Log) Push(e ir.Event) {
	if len(l.events) == cap(l.events) {
		l.grow(max(2*cap(l.events), minGrowth))
	}
	l.events = append(l.events, e)
}

// Reserve makes room for at least n more events without further growth.
func (l *Log) Reserve(n int) {
	if n <= 0 || cap(l.events)-len(l.events) >= n {
		return
	}
	l.grow(len(l.events) + n)
}

func (l *Log) grow(newCap int) {
	restore := l.suspender.Suspend()
	defer restore()

	grown := make([]ir.Event, len(l.events), newCap)
	copy(grown, l.events)
	l.events = grown
}

// Clear drops every event but keeps the backing array for the next window.
func (l *Log) Clear() {
	l.Truncate(0)
}

// Truncate drops every event after the first n, keeping capacity. It is a
// no-op when n is at least Len.
func (l *Log) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(l.events) {
		return
	}
	clear(l.events[n:])
	l.events = l.events[:n]
}

// Len returns the number of events.
func (l *Log) Len() int { return len(l.events) }

// Cap returns the number of events the log holds before it must grow.
func (l *Log) Cap() int { return cap(l.events) }

// Events returns the events in arrival order. The slice aliases the log and
// must not be modified.
func (l *Log) Events() []ir.Event {
	return l.events[:len(l.events):len(l.events)]
}

// Allocs counts Alloc and AllocZeroed events.
func (l *Log) Allocs() int {
	return l.count(func(e ir.Event) bool {
		return ir.IsAllocWith(e, func(ir.Region) bool { return true })
	})
}

// Frees counts Free events.
func (l *Log) Frees() int {
	return l.count(func(e ir.Event) bool {
		return ir.IsFreeWith(e, func(ir.Region) bool { return true })
	})
}

// Reallocs counts Realloc events.
func (l *Log) Reallocs() int {
	return l.count(func(e ir.Event) bool {
		return ir.IsReallocWith(e, func(ir.Realloc) bool { return true })
	})
}

// CountByKind tallies events per kind.
func (l *Log) CountByKind() map[ir.Kind]int {
	counts := make(map[ir.Kind]int, len(ir.Kinds))
	for _, e := range l.events {
		counts[e.Kind()]++
	}
	return counts
}

func (l *Log) count(match func(ir.Event) bool) int {
	n := 0
	for _, e := range l.events {
		if match(e) {
			n++
		}
	}
	return n
}

// Digest returns the content digest of the events in order.
func (l *Log) Digest() (string, error) {
	return ir.WindowDigest(l.events)
}
