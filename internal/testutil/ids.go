package testutil

// FixedWindowID names every window with the same ID.
//
// Unlike track.FixedGenerator, which hands out IDs in sequence and panics
// when they run out, this generator never runs dry. It suits tests that
// import the same events repeatedly and expect the store to deduplicate
// them, so the ID handed to the store is never the one kept.
//
// Thread-safety: FixedWindowID is stateless and safe for concurrent use.
type FixedWindowID struct {
	id string
}

// NewFixedWindowID creates a generator that always returns id.
// If id is empty, Generate returns "test-window-default".
func NewFixedWindowID(id string) *FixedWindowID {
	if id == "" {
		id = "test-window-default"
	}
	return &FixedWindowID{id: id}
}

// Generate returns the fixed window ID.
//
// Implements track.IDGenerator.
func (g *FixedWindowID) Generate() string {
	return g.id
}
