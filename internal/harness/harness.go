package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/allocaudit/internal/eventlog"
	"github.com/roach88/allocaudit/internal/ledger"
)

// Harness replays scenarios. Each run gets a fresh log and ledger.
type Harness struct {
	logger *slog.Logger
}

// New creates a harness that logs to logger. A nil logger discards output.
func New(logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{logger: logger}
}

// Run executes a scenario with a harness that discards its logs.
func Run(scenario *Scenario) (*Result, error) {
	return New(nil).Run(scenario)
}

// Run replays the scenario's events and checks its expectations.
//
// Execution flow:
//  1. Build the event log from the scenario
//  2. Full replay (violations and leaks)
//  3. Fail-fast peak replay
//  4. Tolerant audit for counts
//  5. Confirm the replays left the log untouched
//  6. Evaluate expectations and render the report
//
// An error is returned only when the scenario cannot be replayed at all;
// failed expectations are reported through Result.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	events, err := scenario.events()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	log := eventlog.FromEvents(events)
	before, err := log.Digest()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult(scenario.Name)
	result.Violations = log.Validate(nil)

	peak, err := log.MaxMemoryUsed()
	if err != nil {
		var v ledger.Violation
		if !errors.As(err, &v) {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		result.MaxMemoryErr = v
	} else {
		result.MaxMemory = peak
	}

	result.Audit = log.Audit()

	after, err := log.Digest()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	if before != after {
		result.AddError(fmt.Sprintf("replay modified the log: digest %s became %s", before, after))
	}

	for _, err := range checkExpectations(scenario.Expect, result) {
		result.AddError(err.Error())
	}
	result.Report = renderReport(scenario, result)

	h.logger.Debug("scenario replayed",
		"scenario", scenario.Name,
		"events", len(events),
		"violations", len(result.Violations),
		"pass", result.Pass,
	)
	return result, nil
}

// renderReport formats the replay deterministically for golden comparison.
func renderReport(scenario *Scenario, r *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", scenario.Name)
	fmt.Fprintf(&b, "events: %d (allocs %d, frees %d, reallocs %d, failed %d)\n",
		r.Audit.Events, r.Audit.Allocs, r.Audit.Frees, r.Audit.Reallocs, r.Audit.Failed)
	fmt.Fprintf(&b, "peak: %d bytes\n", r.Audit.Peak)
	if r.MaxMemoryErr != nil {
		fmt.Fprintf(&b, "max_memory: stopped by %s\n", r.MaxMemoryErr.Kind())
	} else {
		fmt.Fprintf(&b, "max_memory: %d bytes\n", r.MaxMemory)
	}

	fmt.Fprintf(&b, "violations: %d\n", len(r.Violations))
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "  - %s\n", v.Error())
	}
	fmt.Fprintf(&b, "leaks: %d\n", r.Leaks())

	if r.Pass {
		b.WriteString("result: pass\n")
	} else {
		b.WriteString("result: fail\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  ! %s\n", strings.ReplaceAll(e, "\n", "\n    "))
		}
	}
	return b.String()
}
