package track

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/roach88/allocaudit/internal/ir"
)

// Layout is the size and alignment of a request. Align must be a power of
// two.
type Layout struct {
	Size  int
	Align int
}

// Valid reports whether the layout can be served.
func (l Layout) Valid() bool {
	return l.Size >= 0 && l.Align > 0 && bits.OnesCount(uint(l.Align)) == 1
}

// Allocator hands out byte slices with a requested alignment.
//
// A nil result means the request failed. Callers pass back the layout they
// allocated with, as with a C-style allocator; the allocator does not
// remember it for them.
type Allocator interface {
	Allocate(layout Layout) []byte
	AllocateZeroed(layout Layout) []byte
	Reallocate(b []byte, layout Layout, newSize int) []byte
	Free(b []byte, layout Layout)
}

// AddressOf returns the address of the first byte of b.
func AddressOf(b []byte) ir.Pointer {
	return ir.Pointer(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

// GoAllocator serves requests from the Go heap.
//
// Each block is pinned until it is freed so the garbage collector cannot
// reuse an address the ledger still considers live. A non-zero limit makes
// requests fail once that many bytes are outstanding.
//
// GoAllocator is safe for concurrent use.
type GoAllocator struct {
	mu     sync.Mutex
	pinned map[ir.Pointer][]byte
	inUse  int
	limit  int
}

// NewGoAllocator creates an unbounded allocator.
func NewGoAllocator() *GoAllocator {
	return NewLimitedGoAllocator(0)
}

// NewLimitedGoAllocator creates an allocator that fails once limit bytes
// are outstanding. A limit of zero means no limit.
func NewLimitedGoAllocator(limit int) *GoAllocator {
	return &GoAllocator{pinned: make(map[ir.Pointer][]byte), limit: limit}
}

// InUse returns the number of outstanding bytes.
func (a *GoAllocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse
}

// Allocate returns an aligned block. Fresh Go memory is always zeroed.
func (a *GoAllocator) Allocate(layout Layout) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocate(layout)
}

// AllocateZeroed returns an aligned zero-filled block.
func (a *GoAllocator) AllocateZeroed(layout Layout) []byte {
	return a.Allocate(layout)
}

func (a *GoAllocator) allocate(layout Layout) []byte {
	if !layout.Valid() {
		return nil
	}
	if a.limit > 0 && a.inUse+layout.Size > a.limit {
		return nil
	}

	buf := make([]byte, layout.Size+layout.Align)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	shift := int((uintptr(layout.Align) - base%uintptr(layout.Align)) % uintptr(layout.Align))

	// Keep cap non-zero: an empty slice with zero cap does not advance its
	// data pointer, which would lose the alignment shift.
	b := buf[shift : shift+layout.Size : shift+max(layout.Size, 1)]
	a.pinned[AddressOf(b)] = buf
	a.inUse += layout.Size
	return b
}

// Reallocate resizes b. Shrinking keeps the block in place; growing moves
// it and copies the old contents. On failure b is left untouched and nil is
// returned.
func (a *GoAllocator) Reallocate(b []byte, layout Layout, newSize int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	addr := AddressOf(b)
	if _, ok := a.pinned[addr]; !ok || newSize < 0 {
		return nil
	}
	if newSize <= layout.Size {
		a.inUse -= layout.Size - newSize
		return b[:newSize:max(newSize, 1)]
	}

	grown := a.allocate(Layout{Size: newSize, Align: layout.Align})
	if grown == nil {
		return nil
	}
	copy(grown, b[:layout.Size])
	a.release(addr, layout.Size)
	return grown
}

// Free releases b. Freeing an unknown block is a no-op.
func (a *GoAllocator) Free(b []byte, layout Layout) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.release(AddressOf(b), layout.Size)
}

func (a *GoAllocator) release(addr ir.Pointer, size int) {
	if _, ok := a.pinned[addr]; !ok {
		return
	}
	delete(a.pinned, addr)
	a.inUse -= size
}
