package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/allocaudit/internal/store"
)

// WindowsOptions holds flags for the windows command.
type WindowsOptions struct {
	*RootOptions
	Database string
	Digest   string // optional - show only the window with this digest
	Delete   string // optional - window ID to remove before listing
}

// WindowsResult lists stored windows in creation order.
type WindowsResult struct {
	Windows []store.Window `json:"windows"`
	Total   int            `json:"total"`
	Deleted string         `json:"deleted,omitempty"`
}

// NewWindowsCommand creates the windows command.
func NewWindowsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WindowsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "windows",
		Short: "List stored windows",
		Long: `List the windows in a SQLite window store, oldest first.

--digest shows the single window holding a given event stream. --delete
removes a window and its events, then lists what is left.

Examples:
  allocaudit windows --db windows.db
  allocaudit windows --db windows.db --digest 3f9a...
  allocaudit windows --db windows.db --delete 0190c0de-...
  allocaudit windows --db windows.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWindows(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite window store (required)")
	cmd.Flags().StringVar(&opts.Digest, "digest", "", "show only the window with this content digest")
	cmd.Flags().StringVar(&opts.Delete, "delete", "", "delete the window with this ID")
	_ = cmd.MarkFlagRequired("db")
	cmd.MarkFlagsMutuallyExclusive("digest", "delete")

	return cmd
}

func runWindows(ctx context.Context, opts *WindowsOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openStore(opts.Database)
	if err != nil {
		return formatter.CommandError(err)
	}
	defer st.Close()

	var result WindowsResult
	if opts.Delete != "" {
		if err := st.DeleteWindow(ctx, opts.Delete); err != nil {
			return formatter.CommandError(windowLookupError(opts.Delete, "delete window", err))
		}
		formatter.VerboseLog("Deleted window %s", opts.Delete)
		result.Deleted = opts.Delete
	}

	windows, err := listWindows(ctx, st, opts.Digest)
	if err != nil {
		return formatter.CommandError(err)
	}
	result.Windows = windows
	result.Total = len(windows)

	return formatter.Success(result, func(w io.Writer) {
		if result.Deleted != "" {
			fmt.Fprintf(w, "✓ deleted window %s\n", result.Deleted)
		}
		if len(windows) == 0 {
			fmt.Fprintln(w, "No windows stored.")
			return
		}
		for _, win := range windows {
			fmt.Fprintf(w, "%4d  %s  %6d events  %s", win.CreatedSeq, win.ID, win.EventCount, shortDigest(win.Digest))
			if win.Label != "" {
				fmt.Fprintf(w, "  %s", win.Label)
			}
			fmt.Fprintln(w)
		}
	})
}

// listWindows returns every window, or only the one whose content digest
// is digest when it is set.
func listWindows(ctx context.Context, st *store.Store, digest string) ([]store.Window, error) {
	if digest == "" {
		windows, err := st.ListWindows(ctx)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeStore, Message: "list windows", Err: err}
		}
		return windows, nil
	}

	w, err := st.FindWindowByDigest(ctx, digest)
	if err != nil {
		return nil, windowLookupError("digest "+digest, "find window", err)
	}
	return []store.Window{w}, nil
}

func windowLookupError(name, action string, err error) *LoadError {
	if errors.Is(err, sql.ErrNoRows) {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("window not found: %s", name)}
	}
	return &LoadError{Code: ErrCodeStore, Message: action, Err: err}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
