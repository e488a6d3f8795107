package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/ledger"
	"github.com/roach88/allocaudit/internal/policy"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Source SourceOptions
	Policy string // optional CUE policy file
}

// ViolationOutput is the JSON form of one violation.
type ViolationOutput struct {
	Kind    ledger.Kind `json:"kind"`
	Address ir.Pointer  `json:"address"`
	Size    uint64      `json:"size"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
}

func toViolationOutputs(vs []ledger.Violation) []ViolationOutput {
	out := make([]ViolationOutput, 0, len(vs))
	for _, v := range vs {
		vo := ViolationOutput{
			Kind:    v.Kind(),
			Address: v.Region().Address,
			Size:    v.Region().Size,
			Message: v.Error(),
		}
		if d := v.Detail(); d != vo.Message {
			vo.Detail = d
		}
		out = append(out, vo)
	}
	return out
}

// ValidateResult holds the outcome of a full audit.
type ValidateResult struct {
	Source     string                 `json:"source"`
	Pass       bool                   `json:"pass"`
	Events     int                    `json:"events"`
	Peak       uint64                 `json:"peak"`
	Violations []ViolationOutput      `json:"violations"`
	Leaks      int                    `json:"leaks"`
	Ignored    int                    `json:"ignored"`
	Budget     *policy.BudgetExceeded `json:"budget_exceeded,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [events.jsonl]",
		Short: "Audit an event stream for contract violations and leaks",
		Long: `Replay every event and report each violation, followed by one leak per
region still live at the end. Replay continues past violations; a rejected
event is simply not applied.

A CUE policy file can ignore violation kinds, allow leaks, or set a peak
memory budget:

  policy: {
    max_memory:  1Mi
    allow_leaks: true
    ignore: ["non_zeroed_alloc"]
  }

Exit codes:
  0 - Audit passed
  1 - Violations, leaks or budget overrun not excused by the policy
  2 - Command error (bad input, missing window, invalid policy)

Examples:
  allocaudit validate events.jsonl
  allocaudit validate events.jsonl --policy audit.cue
  allocaudit validate --db windows.db --window 0190c0de-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), opts, args, cmd)
		},
	}

	opts.Source.bind(cmd)
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE policy file")

	return cmd
}

func runValidate(ctx context.Context, opts *ValidateOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	pol := policy.Default()
	if opts.Policy != "" {
		p, err := policy.Load(opts.Policy)
		if err != nil {
			return formatter.CommandError(&LoadError{Code: ErrCodePolicy, Message: "invalid policy", Err: err})
		}
		pol = p
		formatter.VerboseLog("Loaded policy from %s", opts.Policy)
	}

	src, err := LoadSource(ctx, opts.Source, args)
	if err != nil {
		return formatter.CommandError(err)
	}

	report := src.Log.Audit()
	verdict := pol.Evaluate(report.Violations, report.Peak)

	result := ValidateResult{
		Source:     src.Name,
		Pass:       verdict.Pass(),
		Events:     report.Events,
		Peak:       report.Peak,
		Violations: toViolationOutputs(verdict.Findings),
		Leaks:      report.Leaks,
		Ignored:    verdict.Ignored,
		Budget:     verdict.Budget,
	}

	text := func(w io.Writer) { writeValidateText(w, result, verdict, opts.Verbose) }
	if result.Pass {
		return formatter.Success(result, text)
	}
	findings := len(verdict.Findings)
	if verdict.Budget != nil {
		findings++
	}
	return formatter.Failure(result, ErrCodeAuditFailed,
		fmt.Sprintf("audit failed with %d finding(s)", findings), text)
}

func writeValidateText(w io.Writer, r ValidateResult, verdict policy.Verdict, verbose bool) {
	if r.Pass {
		fmt.Fprintf(w, "✓ %s: clean (%d events", r.Source, r.Events)
	} else {
		fmt.Fprintf(w, "✗ %s: audit failed (%d events", r.Source, r.Events)
	}
	if r.Ignored > 0 {
		fmt.Fprintf(w, ", %d ignored", r.Ignored)
	}
	fmt.Fprintln(w, ")")

	for _, v := range verdict.Findings {
		msg := v.Error()
		if verbose {
			msg = v.Detail()
		}
		fmt.Fprintf(w, "  %s\n", indent(msg, "  "))
	}
	if verdict.Budget != nil {
		fmt.Fprintf(w, "  %s\n", verdict.Budget.Error())
	}
	fmt.Fprintf(w, "peak: %s\n", formatBytes(r.Peak))
}
