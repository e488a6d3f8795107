package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/allocaudit/internal/ledger"
)

// PeakOptions holds flags for the peak command.
type PeakOptions struct {
	*RootOptions
	Source SourceOptions
}

// PeakResult holds the fail-fast peak, or the violation that stopped it.
type PeakResult struct {
	Source    string           `json:"source"`
	Events    int              `json:"events"`
	Peak      uint64           `json:"peak"`
	Violation *ViolationOutput `json:"violation,omitempty"`
}

// NewPeakCommand creates the peak command.
func NewPeakCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PeakOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "peak [events.jsonl]",
		Short: "Report the maximum memory in use at any point",
		Long: `Replay the events and report the highest number of bytes live at once.

Unlike validate, the replay stops at the first violation: a peak computed
over a broken sequence is meaningless, so the violation is reported instead.

Exit codes:
  0 - Peak computed
  1 - Replay stopped by a violation
  2 - Command error

Examples:
  allocaudit peak events.jsonl
  allocaudit peak --db windows.db --window 0190c0de-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeak(cmd.Context(), opts, args, cmd)
		},
	}

	opts.Source.bind(cmd)
	return cmd
}

func runPeak(ctx context.Context, opts *PeakOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	src, err := LoadSource(ctx, opts.Source, args)
	if err != nil {
		return formatter.CommandError(err)
	}

	result := PeakResult{Source: src.Name, Events: src.Log.Len()}

	peak, err := src.Log.MaxMemoryUsed()
	if err != nil {
		var v ledger.Violation
		if !errors.As(err, &v) {
			return formatter.CommandError(err)
		}
		out := toViolationOutputs([]ledger.Violation{v})[0]
		result.Violation = &out
		return formatter.Failure(result, ErrCodeAuditFailed, "replay stopped: "+v.Error(), func(w io.Writer) {
			fmt.Fprintf(w, "✗ %s: replay stopped by a violation\n", src.Name)
			msg := v.Error()
			if opts.Verbose {
				msg = v.Detail()
			}
			fmt.Fprintf(w, "  %s\n", indent(msg, "  "))
		})
	}

	result.Peak = peak
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s: peak %s over %d events\n", src.Name, formatBytes(peak), result.Events)
	})
}
