package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/allocaudit/internal/ir"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Source SourceOptions
	Kind   string // optional - filter to one event kind
}

// TraceEvent is one event in the timeline, with its position in the stream.
type TraceEvent struct {
	Seq int `json:"seq"`
	ir.EventRecord
}

// TraceResult holds the timeline output.
type TraceResult struct {
	Source   string       `json:"source"`
	Timeline []TraceEvent `json:"timeline"`
	Total    int          `json:"total"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [events.jsonl]",
		Short: "Print events in recorded order",
		Long: `Print the event stream in order, one line per event, numbered by its
position in the stream. Sequence numbers match those used in the store.

Examples:
  allocaudit trace events.jsonl
  allocaudit trace events.jsonl --kind realloc
  allocaudit trace --db windows.db --window 0190c0de-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, args, cmd)
		},
	}

	opts.Source.bind(cmd)
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if opts.Kind != "" && !slices.Contains(ir.Kinds, ir.Kind(opts.Kind)) {
		return formatter.CommandError(&LoadError{
			Code:    ErrCodeUsage,
			Message: fmt.Sprintf("unknown event kind %q", opts.Kind),
		})
	}

	src, err := LoadSource(ctx, opts.Source, args)
	if err != nil {
		return formatter.CommandError(err)
	}

	events := src.Log.Events()
	result := TraceResult{
		Source:   src.Name,
		Timeline: buildTimeline(events, ir.Kind(opts.Kind)),
		Total:    len(events),
	}

	return formatter.Success(result, func(w io.Writer) {
		if len(result.Timeline) == 0 {
			fmt.Fprintf(w, "No events found in %s\n", result.Source)
			return
		}
		for _, te := range result.Timeline {
			fmt.Fprintln(w, formatTraceEvent(te))
			if opts.Verbose {
				for _, frame := range te.Backtrace {
					fmt.Fprintf(w, "        %s\n", frame)
				}
			}
		}
	})
}

// buildTimeline numbers the events, keeping only kind when it is set.
func buildTimeline(events []ir.Event, kind ir.Kind) []TraceEvent {
	timeline := []TraceEvent{}
	for seq, e := range events {
		if kind != "" && e.Kind() != kind {
			continue
		}
		timeline = append(timeline, TraceEvent{Seq: seq, EventRecord: ir.ToRecord(e)})
	}
	return timeline
}

func formatTraceEvent(te TraceEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%4d] %-19s", te.Seq, te.Kind)
	if te.Free != nil {
		fmt.Fprintf(&b, " %s ->", te.Free)
	}
	if te.Region != nil {
		fmt.Fprintf(&b, " %s", te.Region)
	}
	if te.Kind == ir.KindAllocZeroed {
		fmt.Fprintf(&b, " zeroed=%s", te.IsZeroed)
	}
	if te.Kind == ir.KindRealloc {
		fmt.Fprintf(&b, " relocated=%s", te.IsRelocated)
	}
	return strings.TrimRight(b.String(), " ")
}
