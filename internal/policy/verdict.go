package policy

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/roach88/allocaudit/internal/ledger"
)

// BudgetExceeded reports a peak above the policy's max_memory.
type BudgetExceeded struct {
	Peak  uint64 `json:"peak"`
	Limit uint64 `json:"limit"`
}

func (b *BudgetExceeded) Error() string {
	return fmt.Sprintf("budget_exceeded: peak %s (%d bytes) exceeds limit %s (%d bytes)",
		humanize.IBytes(b.Peak), b.Peak, humanize.IBytes(b.Limit), b.Limit)
}

// Verdict is the outcome of evaluating a replay against a policy.
type Verdict struct {
	// Findings are the violations the policy did not ignore, in replay order.
	Findings []ledger.Violation
	Budget   *BudgetExceeded
	Ignored  int
}

// Pass reports whether the audit passed.
func (v Verdict) Pass() bool {
	return len(v.Findings) == 0 && v.Budget == nil
}

// Evaluate filters violations through the policy and checks the peak
// against the budget.
func (p Policy) Evaluate(violations []ledger.Violation, peak uint64) Verdict {
	var out Verdict
	for _, v := range violations {
		if p.Ignores(v.Kind()) {
			out.Ignored++
			continue
		}
		out.Findings = append(out.Findings, v)
	}
	if p.MaxMemory != nil && peak > *p.MaxMemory {
		out.Budget = &BudgetExceeded{Peak: peak, Limit: *p.MaxMemory}
	}
	return out
}
