package ir

import "fmt"

// Tristate is the outcome of a check the ledger cannot perform itself.
// The zero value is Unknown: the check was not run.
type Tristate uint8

const (
	Unknown Tristate = iota
	Yes
	No
)

// TristateOf converts a performed check into a Tristate.
func TristateOf(ok bool) Tristate {
	if ok {
		return Yes
	}
	return No
}

// IsNo reports whether the check ran and failed.
func (t Tristate) IsNo() bool { return t == No }

func (t Tristate) String() string {
	switch t {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// ParseTristate accepts yes/no/unknown and the empty string (unknown).
func ParseTristate(s string) (Tristate, error) {
	switch s {
	case "", "unknown":
		return Unknown, nil
	case "yes", "true":
		return Yes, nil
	case "no", "false":
		return No, nil
	default:
		return Unknown, fmt.Errorf("invalid tristate %q: must be yes, no or unknown", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tristate) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tristate) UnmarshalText(text []byte) error {
	parsed, err := ParseTristate(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Kind names an event variant. The names double as the wire and storage
// representation.
type Kind string

const (
	KindAlloc             Kind = "alloc"
	KindFree              Kind = "free"
	KindAllocZeroed       Kind = "alloc_zeroed"
	KindRealloc           Kind = "realloc"
	KindAllocFailed       Kind = "alloc_failed"
	KindAllocZeroedFailed Kind = "alloc_zeroed_failed"
	KindReallocNull       Kind = "realloc_null"
	KindReallocFailed     Kind = "realloc_failed"
)

// Kinds lists every event kind in declaration order.
var Kinds = []Kind{
	KindAlloc,
	KindFree,
	KindAllocZeroed,
	KindRealloc,
	KindAllocFailed,
	KindAllocZeroedFailed,
	KindReallocNull,
	KindReallocFailed,
}

// Event is a sealed interface over the allocation requests the ledger
// understands. Only the variant types in this file implement it.
type Event interface {
	Kind() Kind
	event()
}

// Alloc records a region granted by the allocator.
type Alloc struct {
	Request Request
}

// Free records a region released back to the allocator.
type Free struct {
	Request Request
}

// AllocZeroed records a region granted with a claim that it is zero-filled.
type AllocZeroed struct {
	IsZeroed Tristate
	Request  Request
}

// Realloc records one region released and another granted, with a claim
// about whether the old contents were carried over.
type Realloc struct {
	IsRelocated Tristate
	Free        Region
	Alloc       Request
}

// AllocFailed records an allocation that returned null.
type AllocFailed struct{}

// AllocZeroedFailed records a zeroing allocation that returned null.
type AllocZeroedFailed struct{}

// ReallocNull records a reallocation of an address that was never tracked.
type ReallocNull struct {
	Request Request
}

// ReallocFailed records a reallocation that returned null; the previous
// region is left unchanged.
type ReallocFailed struct{}

func (Alloc) Kind() Kind             { return KindAlloc }
func (Free) Kind() Kind              { return KindFree }
func (AllocZeroed) Kind() Kind       { return KindAllocZeroed }
func (Realloc) Kind() Kind           { return KindRealloc }
func (AllocFailed) Kind() Kind       { return KindAllocFailed }
func (AllocZeroedFailed) Kind() Kind { return KindAllocZeroedFailed }
func (ReallocNull) Kind() Kind       { return KindReallocNull }
func (ReallocFailed) Kind() Kind     { return KindReallocFailed }

func (Alloc) event()             {}
func (Free) event()              {}
func (AllocZeroed) event()       {}
func (Realloc) event()           {}
func (AllocFailed) event()       {}
func (AllocZeroedFailed) event() {}
func (ReallocNull) event()       {}
func (ReallocFailed) event()     {}

// IsAllocWith reports whether e grants a region (Alloc or AllocZeroed)
// matching f.
func IsAllocWith(e Event, f func(Region) bool) bool {
	switch ev := e.(type) {
	case Alloc:
		return f(ev.Request.Region)
	case AllocZeroed:
		return f(ev.Request.Region)
	default:
		return false
	}
}

// IsFreeWith reports whether e is a Free matching f.
func IsFreeWith(e Event, f func(Region) bool) bool {
	if ev, ok := e.(Free); ok {
		return f(ev.Request.Region)
	}
	return false
}

// IsAllocZeroedWith reports whether e is an AllocZeroed matching f.
func IsAllocZeroedWith(e Event, f func(AllocZeroed) bool) bool {
	if ev, ok := e.(AllocZeroed); ok {
		return f(ev)
	}
	return false
}

// IsReallocWith reports whether e is a Realloc matching f.
func IsReallocWith(e Event, f func(Realloc) bool) bool {
	if ev, ok := e.(Realloc); ok {
		return f(ev)
	}
	return false
}

// IsFailed reports whether e records an allocator returning null.
func IsFailed(e Event) bool {
	switch e.(type) {
	case AllocFailed, AllocZeroedFailed, ReallocFailed:
		return true
	default:
		return false
	}
}
