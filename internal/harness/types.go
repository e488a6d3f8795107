package harness

import (
	"github.com/roach88/allocaudit/internal/eventlog"
	"github.com/roach88/allocaudit/internal/ledger"
)

// Result is the outcome of running a scenario.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass is true if every expectation held.
	Pass bool `json:"pass"`

	// Errors contains one message per failed expectation.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Violations is the full replay output, leaks last.
	Violations []ledger.Violation `json:"-"`

	// MaxMemory is the fail-fast peak; valid only when MaxMemoryErr is nil.
	MaxMemory    uint64           `json:"max_memory"`
	MaxMemoryErr ledger.Violation `json:"-"`

	// Audit carries the event counts and tolerant peak.
	Audit eventlog.Report `json:"-"`

	// Report is the rendered text compared against golden files.
	Report string `json:"-"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:   name,
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Leaks counts the leak violations.
func (r *Result) Leaks() int {
	n := 0
	for _, v := range r.Violations {
		if ledger.IsLeak(v) {
			n++
		}
	}
	return n
}
