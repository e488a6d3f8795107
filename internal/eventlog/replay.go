package eventlog

import (
	"log/slog"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/ledger"
)

// Validate replays the log through a fresh ledger and appends every
// violation to out, followed by one Leaked per region still live at the end.
// The log is not modified.
func (l *Log) Validate(out []ledger.Violation) []ledger.Violation {
	led := ledger.New()
	for _, e := range l.events {
		if v := led.Push(e); v != nil {
			out = append(out, v)
		}
	}
	for _, req := range led.TrailingRegions() {
		out = append(out, ledger.Leaked{Request: req})
	}
	return out
}

// MaxMemoryUsed replays the log and returns the highest number of bytes live
// at any point. It stops at the first violation and returns it as the error.
func (l *Log) MaxMemoryUsed() (uint64, error) {
	led := ledger.New()
	var peak uint64
	for _, e := range l.events {
		if v := led.Push(e); v != nil {
			return 0, v
		}
		peak = max(peak, led.MemoryInUse())
	}
	return peak, nil
}

// Report summarises one full replay.
type Report struct {
	Violations []ledger.Violation
	// Peak is the high-water mark over the events that were applied;
	// unlike MaxMemoryUsed it keeps going past violations.
	Peak     uint64
	Events   int
	Allocs   int
	Frees    int
	Reallocs int
	Failed   int
	Leaks    int
}

// Clean reports whether the replay found nothing.
func (r Report) Clean() bool {
	return len(r.Violations) == 0
}

// Audit replays the log once, collecting violations, leaks, the tolerant
// peak and event counts.
func (l *Log) Audit() Report {
	led := ledger.New()
	rep := Report{Events: len(l.events)}

	for _, e := range l.events {
		switch {
		case ir.IsAllocWith(e, func(ir.Region) bool { return true }):
			rep.Allocs++
		case ir.IsFreeWith(e, func(ir.Region) bool { return true }):
			rep.Frees++
		case ir.IsReallocWith(e, func(ir.Realloc) bool { return true }):
			rep.Reallocs++
		case ir.IsFailed(e):
			rep.Failed++
		}

		if v := led.Push(e); v != nil {
			rep.Violations = append(rep.Violations, v)
			continue
		}
		rep.Peak = max(rep.Peak, led.MemoryInUse())
	}

	for _, req := range led.TrailingRegions() {
		rep.Violations = append(rep.Violations, ledger.Leaked{Request: req})
		rep.Leaks++
	}

	slog.Debug("replay complete",
		"events", rep.Events,
		"violations", len(rep.Violations),
		"leaks", rep.Leaks,
		"peak", rep.Peak,
	)
	return rep
}
