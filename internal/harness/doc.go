// Package harness runs allocation scenarios as executable contract tests.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: realloc_then_free
//	description: "A relocated block is freed at its new address"
//	events:
//	  - kind: alloc
//	    region: { address: 0x1000, size: 16, align: 8 }
//	  - kind: realloc
//	    free: { address: 0x1000, size: 16, align: 8 }
//	    region: { address: 0x2000, size: 32, align: 8 }
//	    is_relocated: yes
//	  - kind: free
//	    region: { address: 0x2000, size: 32, align: 8 }
//	expect:
//	  violations: []
//	  leaks: 0
//	  max_memory: 32
//
// Events use the same fields as the JSON event stream. Under expect:
//
//   - violations: every violation the full replay reports, leaks included,
//     in order. Each entry names a kind and optionally an address. Always
//     checked; leaving it out expects a clean replay.
//   - leaks: the number of regions still live after the last event.
//   - max_memory: the fail-fast peak, in bytes.
//   - max_memory_error: the violation kind that stops the fail-fast
//     replay instead.
//
// The other expectations are checked only when present.
//
// # Deterministic Reports
//
// Run renders a plain-text report that depends only on the scenario, so
// RunWithGolden can compare it against testdata/golden/<name>.golden.
package harness
