package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/allocaudit/internal/ir"
)

// Kind identifies a violation category.
type Kind string

const (
	// KindConflictingAlloc indicates a granted region overlaps a live one.
	KindConflictingAlloc Kind = "conflicting_alloc"

	// KindNonZeroedAlloc indicates a zeroing allocation returned dirty memory.
	KindNonZeroedAlloc Kind = "non_zeroed_alloc"

	// KindNonCopiedRealloc indicates a reallocation lost the old contents.
	KindNonCopiedRealloc Kind = "non_copied_realloc"

	// KindReallocNull indicates a reallocation of an untracked address.
	KindReallocNull Kind = "realloc_null"

	// KindMisalignedAlloc indicates a granted address ignores its alignment.
	KindMisalignedAlloc Kind = "misaligned_alloc"

	// KindIncompleteFree indicates a free covering only part of a live region.
	KindIncompleteFree Kind = "incomplete_free"

	// KindMisalignedFree indicates a free whose alignment differs from the grant.
	KindMisalignedFree Kind = "misaligned_free"

	// KindMissingFree indicates a free of an address that is not live.
	KindMissingFree Kind = "missing_free"

	// KindLeaked indicates a region still live at the end of the window.
	KindLeaked Kind = "leaked"
)

// Kinds lists every violation kind.
var Kinds = []Kind{
	KindConflictingAlloc,
	KindNonZeroedAlloc,
	KindNonCopiedRealloc,
	KindReallocNull,
	KindMisalignedAlloc,
	KindIncompleteFree,
	KindMisalignedFree,
	KindMissingFree,
	KindLeaked,
}

// ParseKind validates a violation kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown violation kind %q", s)
}

// Violation is one breach of the allocation contract.
//
// The set of implementations is closed; use errors.As with the concrete
// types, or the Is* helpers below, to tell them apart.
type Violation interface {
	error

	// Kind returns the violation category.
	Kind() Kind

	// Region returns the region the violation is reported against.
	Region() ir.Region

	// Detail renders the message followed by the backtraces involved.
	Detail() string
}

// ConflictingAlloc is a granted region overlapping a live one.
type ConflictingAlloc struct {
	Request  ir.Request
	Existing ir.Request
}

// NonZeroedAlloc is a zeroing allocation whose memory was not zero.
type NonZeroedAlloc struct {
	Request ir.Request
}

// NonCopiedRealloc is a reallocation that did not carry over the common
// prefix of the old region.
type NonCopiedRealloc struct {
	Free  ir.Region
	Alloc ir.Request
}

// ReallocNull is a reallocation of an address that was never live.
type ReallocNull struct {
	Request ir.Request
}

// MisalignedAlloc is a granted address that is not a multiple of its alignment.
type MisalignedAlloc struct {
	Request ir.Request
}

// IncompleteFree is a free whose size differs from the live region's.
type IncompleteFree struct {
	Request  ir.Request
	Existing ir.Request
}

// MisalignedFree is a free whose alignment differs from the live region's.
type MisalignedFree struct {
	Request  ir.Request
	Existing ir.Request
}

// MissingFree is a free of an address with no live region.
type MissingFree struct {
	Request ir.Request
}

// Leaked is a region still live after the last event.
type Leaked struct {
	Request ir.Request
}

func (ConflictingAlloc) Kind() Kind { return KindConflictingAlloc }
func (NonZeroedAlloc) Kind() Kind   { return KindNonZeroedAlloc }
func (NonCopiedRealloc) Kind() Kind { return KindNonCopiedRealloc }
func (ReallocNull) Kind() Kind      { return KindReallocNull }
func (MisalignedAlloc) Kind() Kind  { return KindMisalignedAlloc }
func (IncompleteFree) Kind() Kind   { return KindIncompleteFree }
func (MisalignedFree) Kind() Kind   { return KindMisalignedFree }
func (MissingFree) Kind() Kind      { return KindMissingFree }
func (Leaked) Kind() Kind           { return KindLeaked }

func (v ConflictingAlloc) Region() ir.Region { return v.Request.Region }
func (v NonZeroedAlloc) Region() ir.Region   { return v.Request.Region }
func (v NonCopiedRealloc) Region() ir.Region { return v.Alloc.Region }
func (v ReallocNull) Region() ir.Region      { return v.Request.Region }
func (v MisalignedAlloc) Region() ir.Region  { return v.Request.Region }
func (v IncompleteFree) Region() ir.Region   { return v.Request.Region }
func (v MisalignedFree) Region() ir.Region   { return v.Request.Region }
func (v MissingFree) Region() ir.Region      { return v.Request.Region }
func (v Leaked) Region() ir.Region           { return v.Request.Region }

func (v ConflictingAlloc) message() string {
	return fmt.Sprintf("requested allocation (%s) overlaps with existing (%s)", v.Request.Region, v.Existing.Region)
}

func (v NonZeroedAlloc) message() string {
	return fmt.Sprintf("requested allocation (%s) was not zeroed by the allocator", v.Request.Region)
}

func (v NonCopiedRealloc) message() string {
	return fmt.Sprintf("relocating from (%s) to (%s) did not copy the prefixing bytes", v.Free, v.Alloc.Region)
}

func (v ReallocNull) message() string {
	return fmt.Sprintf("tried to reallocate null pointer (%s)", v.Request.Region)
}

func (v MisalignedAlloc) message() string {
	return fmt.Sprintf("allocated region (%s) is misaligned", v.Request.Region)
}

func (v IncompleteFree) message() string {
	return fmt.Sprintf("freed (%s) only part of existing region (%s)", v.Request.Region, v.Existing.Region)
}

func (v MisalignedFree) message() string {
	return fmt.Sprintf("freed region (%s) has different alignment from existing (%s)", v.Request.Region, v.Existing.Region)
}

func (v MissingFree) message() string {
	return fmt.Sprintf("freed missing region (%s)", v.Request.Region)
}

func (v Leaked) message() string {
	return fmt.Sprintf("dangling region (%s)", v.Request.Region)
}

func (v ConflictingAlloc) Error() string { return render(v.Kind(), v.message()) }
func (v NonZeroedAlloc) Error() string   { return render(v.Kind(), v.message()) }
func (v NonCopiedRealloc) Error() string { return render(v.Kind(), v.message()) }
func (v ReallocNull) Error() string      { return render(v.Kind(), v.message()) }
func (v MisalignedAlloc) Error() string  { return render(v.Kind(), v.message()) }
func (v IncompleteFree) Error() string   { return render(v.Kind(), v.message()) }
func (v MisalignedFree) Error() string   { return render(v.Kind(), v.message()) }
func (v MissingFree) Error() string      { return render(v.Kind(), v.message()) }
func (v Leaked) Error() string           { return render(v.Kind(), v.message()) }

func (v ConflictingAlloc) Detail() string {
	return detail(v, trace{"requested", v.Request.Backtrace}, trace{"existing", v.Existing.Backtrace})
}

func (v NonZeroedAlloc) Detail() string {
	return detail(v, trace{"requested", v.Request.Backtrace})
}

func (v NonCopiedRealloc) Detail() string {
	return detail(v, trace{"requested", v.Alloc.Backtrace})
}

func (v ReallocNull) Detail() string {
	return detail(v, trace{"requested", v.Request.Backtrace})
}

func (v MisalignedAlloc) Detail() string {
	return detail(v, trace{"requested", v.Request.Backtrace})
}

func (v IncompleteFree) Detail() string {
	return detail(v, trace{"requested", v.Request.Backtrace}, trace{"existing", v.Existing.Backtrace})
}

func (v MisalignedFree) Detail() string {
	return detail(v, trace{"requested", v.Request.Backtrace}, trace{"existing", v.Existing.Backtrace})
}

func (v MissingFree) Detail() string {
	return detail(v, trace{"requested", v.Request.Backtrace})
}

func (v Leaked) Detail() string {
	return detail(v, trace{"allocated", v.Request.Backtrace})
}

func render(kind Kind, msg string) string {
	return fmt.Sprintf("%s: %s", kind, msg)
}

type trace struct {
	label  string
	frames ir.Backtrace
}

// detail appends each non-empty backtrace under an indented label.
func detail(v Violation, traces ...trace) string {
	var b strings.Builder
	b.WriteString(v.Error())
	for _, t := range traces {
		if len(t.frames) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s at:", t.label)
		for _, f := range t.frames {
			fmt.Fprintf(&b, "\n    %s", f)
		}
	}
	return b.String()
}

// IsLeakedWith reports whether v is a leak whose region matches f.
func IsLeakedWith(v Violation, f func(ir.Region) bool) bool {
	if l, ok := v.(Leaked); ok {
		return f(l.Request.Region)
	}
	return false
}

// IsLeak returns true if err is a Leaked violation.
// Uses errors.As to handle wrapped errors.
func IsLeak(err error) bool {
	var v Leaked
	return errors.As(err, &v)
}

// IsMissingFree returns true if err is a MissingFree violation.
func IsMissingFree(err error) bool {
	var v MissingFree
	return errors.As(err, &v)
}

// IsConflictingAlloc returns true if err is a ConflictingAlloc violation.
func IsConflictingAlloc(err error) bool {
	var v ConflictingAlloc
	return errors.As(err, &v)
}

// KindOf returns the violation kind carried by err, or "" if err does not
// wrap a Violation.
func KindOf(err error) Kind {
	var v Violation
	if errors.As(err, &v) {
		return v.Kind()
	}
	return ""
}
