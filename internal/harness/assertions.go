package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/ledger"
)

// ExpectationError is returned when an expectation fails.
// It carries enough context to debug the failure without rerunning.
type ExpectationError struct {
	Field    string // Expectation that failed, e.g. "violations[2]"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	return fmt.Sprintf("expectation failed: %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// checkExpectations evaluates every expectation, collecting all failures.
func checkExpectations(exp Expect, r *Result) []error {
	var errs []error
	errs = append(errs, checkViolations(exp.Violations, r.Violations)...)

	if exp.Leaks != nil {
		if got := r.Leaks(); got != *exp.Leaks {
			errs = append(errs, &ExpectationError{
				Field:    "leaks",
				Expected: fmt.Sprint(*exp.Leaks),
				Actual:   fmt.Sprint(got),
			})
		}
	}

	if err := checkMaxMemory(exp, r); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// checkViolations compares the reported violations to the expected list,
// in order. Violations are always checked: an empty list expects a clean
// replay.
func checkViolations(want []ViolationSpec, got []ledger.Violation) []error {
	if len(want) != len(got) {
		return []error{&ExpectationError{
			Field:    "violations",
			Expected: describeSpecs(want),
			Actual:   describeViolations(got),
		}}
	}

	var errs []error
	for i, w := range want {
		g := got[i]
		if string(g.Kind()) != w.Kind {
			errs = append(errs, &ExpectationError{
				Field:    fmt.Sprintf("violations[%d].kind", i),
				Expected: w.Kind,
				Actual:   string(g.Kind()),
			})
			continue
		}
		if w.Address == "" {
			continue
		}
		addr, _ := ir.ParsePointer(w.Address) // validated on load
		if g.Region().Address != addr {
			errs = append(errs, &ExpectationError{
				Field:    fmt.Sprintf("violations[%d].address", i),
				Expected: addr.String(),
				Actual:   g.Region().Address.String(),
			})
		}
	}
	return errs
}

func checkMaxMemory(exp Expect, r *Result) error {
	switch {
	case exp.MaxMemory != nil:
		if r.MaxMemoryErr != nil {
			return &ExpectationError{
				Field:    "max_memory",
				Expected: fmt.Sprintf("%d bytes", *exp.MaxMemory),
				Actual:   fmt.Sprintf("error %s", r.MaxMemoryErr.Kind()),
			}
		}
		if r.MaxMemory != *exp.MaxMemory {
			return &ExpectationError{
				Field:    "max_memory",
				Expected: fmt.Sprintf("%d bytes", *exp.MaxMemory),
				Actual:   fmt.Sprintf("%d bytes", r.MaxMemory),
			}
		}
	case exp.MaxMemoryError != "":
		if r.MaxMemoryErr == nil {
			return &ExpectationError{
				Field:    "max_memory_error",
				Expected: exp.MaxMemoryError,
				Actual:   fmt.Sprintf("%d bytes", r.MaxMemory),
			}
		}
		if string(r.MaxMemoryErr.Kind()) != exp.MaxMemoryError {
			return &ExpectationError{
				Field:    "max_memory_error",
				Expected: exp.MaxMemoryError,
				Actual:   string(r.MaxMemoryErr.Kind()),
			}
		}
	}
	return nil
}

func describeSpecs(specs []ViolationSpec) string {
	parts := make([]string, len(specs))
	for i, s := range specs {
		parts[i] = s.Kind
		if s.Address != "" {
			parts[i] += "@" + s.Address
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func describeViolations(vs []ledger.Violation) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%s@%s", v.Kind(), v.Region().Address)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
