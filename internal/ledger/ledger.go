package ledger

import (
	"math"

	"github.com/google/btree"

	"github.com/roach88/allocaudit/internal/ir"
)

// btreeDegree is the fan-out of the live-region index.
const btreeDegree = 16

// Ledger tracks live regions while events are replayed in order.
type Ledger struct {
	live        *btree.BTreeG[ir.Request]
	memoryInUse uint64
}

func byAddress(a, b ir.Request) bool {
	return a.Region.Address < b.Region.Address
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{live: btree.NewG(btreeDegree, byAddress)}
}

// MemoryInUse returns the total size of the live regions.
func (l *Ledger) MemoryInUse() uint64 {
	return l.memoryInUse
}

// Live returns the number of live regions.
func (l *Ledger) Live() int {
	return l.live.Len()
}

// Push applies one event. It returns nil when the event was applied and the
// violation otherwise. Only a Realloc can be partly applied: its free stays
// in effect when the alloc that follows is rejected.
func (l *Ledger) Push(e ir.Event) Violation {
	switch ev := e.(type) {
	case ir.Alloc:
		return l.alloc(ev.Request)
	case ir.Free:
		return l.free(ev.Request)
	case ir.AllocZeroed:
		if ev.IsZeroed.IsNo() {
			return NonZeroedAlloc{Request: ev.Request}
		}
		return l.alloc(ev.Request)
	case ir.Realloc:
		if ev.IsRelocated.IsNo() {
			return NonCopiedRealloc{Free: ev.Free, Alloc: ev.Alloc}
		}
		return l.realloc(ev.Free, ev.Alloc)
	case ir.ReallocNull:
		return ReallocNull{Request: ev.Request}
	default:
		// AllocFailed, AllocZeroedFailed and ReallocFailed change nothing.
		return nil
	}
}

func (l *Ledger) alloc(req ir.Request) Violation {
	if v := l.checkAlloc(req); v != nil {
		return v
	}
	l.live.ReplaceOrInsert(req)
	l.memoryInUse = saturatingAdd(l.memoryInUse, req.Region.Size)
	return nil
}

func (l *Ledger) checkAlloc(req ir.Request) Violation {
	if !req.Region.Address.IsAlignedWith(req.Region.Align) {
		return MisalignedAlloc{Request: req}
	}
	if existing, ok := l.overlapping(req); ok {
		return ConflictingAlloc{Request: req, Existing: existing}
	}
	return nil
}

// overlapping finds a live region that conflicts with req. Live regions are
// pairwise disjoint, so only the nearest neighbour on each side of the
// requested address can overlap it. A live region at the same address always
// conflicts, even when one of the two is empty.
func (l *Ledger) overlapping(req ir.Request) (ir.Request, bool) {
	if existing, ok := l.live.Get(req); ok {
		return existing, true
	}

	var (
		found    ir.Request
		conflict bool
	)
	l.live.DescendLessOrEqual(req, func(below ir.Request) bool {
		conflict = below.Region.Overlaps(req.Region)
		found = below
		return false
	})
	if conflict {
		return found, true
	}

	l.live.AscendGreaterOrEqual(req, func(above ir.Request) bool {
		conflict = req.Region.Overlaps(above.Region)
		found = above
		return false
	})
	if conflict {
		return found, true
	}
	return ir.Request{}, false
}

func (l *Ledger) free(req ir.Request) Violation {
	existing, v := l.checkFree(req)
	if v != nil {
		return v
	}
	l.remove(existing)
	return nil
}

func (l *Ledger) checkFree(req ir.Request) (ir.Request, Violation) {
	existing, ok := l.live.Get(req)
	if !ok {
		return ir.Request{}, MissingFree{Request: req}
	}
	if existing.Region.Size != req.Region.Size {
		return ir.Request{}, IncompleteFree{Request: req, Existing: existing}
	}
	if existing.Region.Align != req.Region.Align {
		return ir.Request{}, MisalignedFree{Request: req, Existing: existing}
	}
	return existing, nil
}

func (l *Ledger) remove(existing ir.Request) {
	l.live.Delete(existing)
	l.memoryInUse -= min(existing.Region.Size, l.memoryInUse)
}

// realloc applies the free and then the alloc. A rejected alloc leaves the
// free applied, matching an allocator that released the old block before
// handing out a bad new one. Both halves carry the realloc's backtrace.
func (l *Ledger) realloc(free ir.Region, alloc ir.Request) Violation {
	if v := l.free(ir.Request{Region: free, Backtrace: alloc.Backtrace}); v != nil {
		return v
	}
	return l.alloc(alloc)
}

// TrailingRegions returns the live regions in address order. Called after
// the last event, these are the leaks.
func (l *Ledger) TrailingRegions() []ir.Request {
	out := make([]ir.Request, 0, l.live.Len())
	l.live.Ascend(func(req ir.Request) bool {
		out = append(out, req)
		return true
	})
	return out
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
