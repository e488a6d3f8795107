package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/allocaudit/internal/ir"
)

// Region is shorthand for ir.NewRegion.
func Region(addr ir.Pointer, size, align uint64) ir.Region {
	return ir.NewRegion(addr, size, align)
}

// Alloc builds an Alloc event.
func Alloc(addr ir.Pointer, size, align uint64) ir.Event {
	return ir.Alloc{Request: ir.WithoutBacktrace(Region(addr, size, align))}
}

// Free builds a Free event.
func Free(addr ir.Pointer, size, align uint64) ir.Event {
	return ir.Free{Request: ir.WithoutBacktrace(Region(addr, size, align))}
}

// AllocZeroed builds an AllocZeroed event with the given zeroing outcome.
func AllocZeroed(zeroed ir.Tristate, addr ir.Pointer, size, align uint64) ir.Event {
	return ir.AllocZeroed{IsZeroed: zeroed, Request: ir.WithoutBacktrace(Region(addr, size, align))}
}

// Realloc builds a Realloc event moving from into to.
func Realloc(relocated ir.Tristate, from, to ir.Region) ir.Event {
	return ir.Realloc{IsRelocated: relocated, Free: from, Alloc: ir.WithoutBacktrace(to)}
}

// WriteEventsFile encodes events as JSONL into a file under t.TempDir and
// returns its path.
func WriteEventsFile(t *testing.T, events ...ir.Event) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create events file: %v", err)
	}
	defer f.Close()

	if err := ir.EncodeEvents(f, events); err != nil {
		t.Fatalf("encode events: %v", err)
	}
	return path
}

// WriteFile writes content to name under t.TempDir and returns its path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
