package track

import (
	"fmt"
	"runtime"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/allocaudit/internal/ir"
)

// callerSkip drops runtime.Callers, captureBacktrace, Instrumented.backtrace,
// Instrumented.request and the Instrumented method itself.
const callerSkip = 5

// capture walks the stack. Tests replace it to fail mid-walk.
var capture = captureBacktrace

// Instrumented reports every request made through it to a Tracker.
type Instrumented struct {
	delegate     Allocator
	tracker      *Tracker
	fingerprints bool
	backtraces   int
}

// InstrumentOption configures an Instrumented allocator.
type InstrumentOption func(*Instrumented)

// WithFingerprints hashes the common prefix of a reallocated block before
// and after the move, so a realloc that loses data is reported.
func WithFingerprints() InstrumentOption {
	return func(i *Instrumented) {
		i.fingerprints = true
	}
}

// WithBacktraces captures up to depth caller frames for every request.
func WithBacktraces(depth int) InstrumentOption {
	return func(i *Instrumented) {
		i.backtraces = depth
	}
}

// NewInstrumented wraps delegate so its requests are recorded in tracker.
func NewInstrumented(delegate Allocator, tracker *Tracker, opts ...InstrumentOption) *Instrumented {
	i := &Instrumented{delegate: delegate, tracker: tracker}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Allocate implements Allocator.
func (i *Instrumented) Allocate(layout Layout) []byte {
	b := i.delegate.Allocate(layout)
	if !i.tracker.Active() {
		return b
	}
	if b == nil {
		i.tracker.Record(ir.AllocFailed{})
		return nil
	}
	i.tracker.Record(ir.Alloc{Request: i.request(b, layout.Size, layout.Align)})
	return b
}

// AllocateZeroed implements Allocator. The returned block is scanned to
// confirm the delegate zeroed it.
func (i *Instrumented) AllocateZeroed(layout Layout) []byte {
	b := i.delegate.AllocateZeroed(layout)
	if !i.tracker.Active() {
		return b
	}
	if b == nil {
		i.tracker.Record(ir.AllocZeroedFailed{})
		return nil
	}
	i.tracker.Record(ir.AllocZeroed{
		IsZeroed: ir.TristateOf(isZeroed(b)),
		Request:  i.request(b, layout.Size, layout.Align),
	})
	return b
}

// Reallocate implements Allocator. A nil b is never passed to the delegate;
// it is reported as a reallocation of null.
func (i *Instrumented) Reallocate(b []byte, layout Layout, newSize int) []byte {
	if !i.tracker.Active() {
		if b == nil {
			return nil
		}
		return i.delegate.Reallocate(b, layout, newSize)
	}

	if b == nil {
		i.tracker.Record(ir.ReallocNull{Request: i.request(nil, newSize, layout.Align)})
		return nil
	}

	prefix := max(min(layout.Size, newSize, len(b)), 0)
	var before uint64
	if i.fingerprints {
		before = xxhash.Sum64(b[:prefix])
	}
	old := regionOf(b, layout.Size, layout.Align)

	nb := i.delegate.Reallocate(b, layout, newSize)
	if nb == nil {
		i.tracker.Record(ir.ReallocFailed{})
		return nil
	}

	relocated := ir.Unknown
	if i.fingerprints {
		relocated = ir.TristateOf(xxhash.Sum64(nb[:prefix]) == before)
	}
	i.tracker.Record(ir.Realloc{
		IsRelocated: relocated,
		Free:        old,
		Alloc:       i.request(nb, newSize, layout.Align),
	})
	return nb
}

// Free implements Allocator. The free is recorded before the delegate
// releases the block.
func (i *Instrumented) Free(b []byte, layout Layout) {
	if i.tracker.Active() {
		i.tracker.Record(ir.Free{Request: i.request(b, layout.Size, layout.Align)})
	}
	i.delegate.Free(b, layout)
}

func (i *Instrumented) request(b []byte, size, align int) ir.Request {
	req := ir.Request{Region: regionOf(b, size, align)}
	if i.backtraces > 0 {
		req.Backtrace = i.backtrace()
	}
	return req
}

// backtrace captures the caller's stack with tracking suspended, since
// runtime.CallersFrames allocates.
func (i *Instrumented) backtrace() ir.Backtrace {
	restore := i.tracker.Suspend()
	defer restore()
	return capture(callerSkip, i.backtraces)
}

func regionOf(b []byte, size, align int) ir.Region {
	var addr ir.Pointer
	if b != nil {
		addr = AddressOf(b)
	}
	return ir.NewRegion(addr, uint64(size), uint64(align))
}

func captureBacktrace(skip, depth int) ir.Backtrace {
	pcs := make([]uintptr, depth)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	trace := make(ir.Backtrace, 0, n)
	for {
		frame, more := frames.Next()
		trace = append(trace, fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return trace
}

func isZeroed(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
