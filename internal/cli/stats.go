package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Source SourceOptions
}

// StatsResult summarises an event stream without auditing it.
type StatsResult struct {
	Source   string          `json:"source"`
	Window   *store.Window   `json:"window,omitempty"`
	Events   int             `json:"events"`
	Allocs   int             `json:"allocs"`
	Frees    int             `json:"frees"`
	Reallocs int             `json:"reallocs"`
	ByKind   map[ir.Kind]int `json:"by_kind"`
	Digest   string          `json:"digest"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats [events.jsonl]",
		Short: "Count events by kind",
		Long: `Count the events in a stream by kind and print its content digest.

Two streams with the same digest hold the same events in the same order.
For a stored window the per-kind counts come straight from the database.

Examples:
  allocaudit stats events.jsonl
  allocaudit stats --db windows.db --window 0190c0de-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), opts, args, cmd)
		},
	}

	opts.Source.bind(cmd)
	return cmd
}

func runStats(ctx context.Context, opts *StatsOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	src, err := LoadSource(ctx, opts.Source, args)
	if err != nil {
		return formatter.CommandError(err)
	}

	digest, err := src.Log.Digest()
	if err != nil {
		return formatter.CommandError(err)
	}

	byKind := src.Log.CountByKind()
	if src.Window != nil {
		byKind, err = countStoredKinds(ctx, opts.Source.Database, src.Window.ID)
		if err != nil {
			return formatter.CommandError(err)
		}
	}

	result := StatsResult{
		Source:   src.Name,
		Window:   src.Window,
		Events:   src.Log.Len(),
		Allocs:   src.Log.Allocs(),
		Frees:    src.Log.Frees(),
		Reallocs: src.Log.Reallocs(),
		ByKind:   byKind,
		Digest:   digest,
	}

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %d events\n", result.Source, result.Events)
		if result.Window != nil && result.Window.Label != "" {
			fmt.Fprintf(w, "  label:    %s\n", result.Window.Label)
		}
		fmt.Fprintf(w, "  allocs:   %d\n", result.Allocs)
		fmt.Fprintf(w, "  frees:    %d\n", result.Frees)
		fmt.Fprintf(w, "  reallocs: %d\n", result.Reallocs)
		for _, k := range ir.Kinds {
			if n := result.ByKind[k]; n > 0 {
				fmt.Fprintf(w, "  %-20s %d\n", k, n)
			}
		}
		fmt.Fprintf(w, "  digest:   %s\n", result.Digest)
	})
}

// countStoredKinds tallies a stored window's events in SQL rather than
// walking the decoded log.
func countStoredKinds(ctx context.Context, dbPath, windowID string) (map[ir.Kind]int, error) {
	st, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	counts, err := st.CountEventsByKind(ctx, windowID)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: "count events", Err: err}
	}
	return counts, nil
}
