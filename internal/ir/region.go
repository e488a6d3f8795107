package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pointer is a type-erased address.
//
// The representation is deliberately not a Go pointer: the auditor only
// orders and compares addresses, it never reads through them.
type Pointer uint64

// ParsePointer parses a decimal or 0x-prefixed hexadecimal address.
func ParsePointer(s string) (Pointer, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Pointer(n), nil
}

// SaturatingAdd adds n to the pointer, clamping at the top of the address space.
func (p Pointer) SaturatingAdd(n uint64) Pointer {
	if uint64(p) > math.MaxUint64-n {
		return Pointer(math.MaxUint64)
	}
	return p + Pointer(n)
}

// IsAlignedWith reports whether the pointer is a multiple of align.
// An alignment of zero is never satisfied.
func (p Pointer) IsAlignedWith(align uint64) bool {
	if align == 0 {
		return false
	}
	return uint64(p)%align == 0
}

// String renders the pointer as 0x-prefixed hex.
func (p Pointer) String() string {
	return "0x" + strconv.FormatUint(uint64(p), 16)
}

// MarshalJSON renders the pointer as a hex string so 64-bit addresses
// survive JSON consumers that decode numbers as float64.
func (p Pointer) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts either a JSON number or a string address.
func (p *Pointer) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	parsed, err := ParsePointer(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Region is a span of address space with the alignment it was requested with.
type Region struct {
	Address Pointer `json:"address"`
	Size    uint64  `json:"size"`
	Align   uint64  `json:"align"`
}

// NewRegion constructs a region.
func NewRegion(address Pointer, size, align uint64) Region {
	return Region{Address: address, Size: size, Align: align}
}

// End returns the first address past the region, saturating at the top of
// the address space.
func (r Region) End() Pointer {
	return r.Address.SaturatingAdd(r.Size)
}

// Overlaps reports whether other starts inside r.
func (r Region) Overlaps(other Region) bool {
	return r.Address <= other.Address && other.Address < r.End()
}

// IsSameRegionAs reports whether both regions cover the same span.
// Alignment is not compared.
func (r Region) IsSameRegionAs(other Region) bool {
	return r.Address == other.Address && r.Size == other.Size
}

func (r Region) String() string {
	return fmt.Sprintf("%s-%s (size: %d, align: %d)", r.Address, r.End(), r.Size, r.Align)
}

// Backtrace is an opaque, display-only list of stack frames.
type Backtrace []string

// Request is a region together with the backtrace of the call that asked for it.
type Request struct {
	Region    Region    `json:"region"`
	Backtrace Backtrace `json:"backtrace,omitempty"`
}

// WithoutBacktrace wraps a region in a request with no backtrace.
func WithoutBacktrace(r Region) Request {
	return Request{Region: r}
}
