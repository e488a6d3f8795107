// Package ir provides the event model shared by every allocaudit package.
//
// This package contains value types only. All other internal packages
// import ir; ir imports nothing internal. This keeps the event model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Pointer is an opaque ordered scalar and is never dereferenced
//   - Region, Request and Event values are immutable once built
//   - Tristate zero value is Unknown, so an unset check never reports a violation
//   - All JSON tags use snake_case
//   - Ordering is the insertion order of the log, never wall-clock time
package ir
