package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/allocaudit/internal/eventlog"
	"github.com/roach88/allocaudit/internal/ir"
	"github.com/roach88/allocaudit/internal/store"
)

// Error codes for CLI output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeUsage       = "E002" // Conflicting or missing source flags
	ErrCodeNotFound    = "E005" // File, database or window not found
	ErrCodeDecode      = "E010" // Malformed event stream
	ErrCodeStore       = "E020" // Database open/read/write failure
	ErrCodeIntegrity   = "E021" // Stored window fails its digest check
	ErrCodePolicy      = "E030" // Invalid policy file
	ErrCodeAuditFailed = "E_AUDIT_FAILED"
	ErrCodeTestFailed  = "E_TEST_FAILED"
)

// LoadError represents an error that occurred while loading events.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SourceOptions selects where a command reads its events from: a JSONL
// file argument, or a window in a store.
type SourceOptions struct {
	Database string
	Window   string
}

func (o *SourceOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Database, "db", "", "path to SQLite window store")
	cmd.Flags().StringVar(&o.Window, "window", "", "stored window ID to read (requires --db)")
}

// Source is a loaded event sequence.
type Source struct {
	// Name is the file path or window ID.
	Name string
	// Window is set when the events came from a store.
	Window *store.Window
	Log    *eventlog.Log
}

// LoadSource reads events from the file in args, or from the store window
// named by opts. Exactly one of the two must be given.
func LoadSource(ctx context.Context, opts SourceOptions, args []string) (*Source, error) {
	fromStore := opts.Database != "" || opts.Window != ""
	switch {
	case len(args) > 0 && fromStore:
		return nil, &LoadError{Code: ErrCodeUsage, Message: "give either an events file or --db/--window, not both"}
	case len(args) > 0:
		return loadFile(args[0])
	case opts.Database == "" || opts.Window == "":
		return nil, &LoadError{Code: ErrCodeUsage, Message: "an events file, or both --db and --window, is required"}
	default:
		return loadWindow(ctx, opts.Database, opts.Window)
	}
}

func loadFile(path string) (*Source, error) {
	events, err := readEventsFile(path)
	if err != nil {
		return nil, err
	}
	return &Source{Name: path, Log: eventlog.FromEvents(events)}, nil
}

// readEventsFile decodes a JSONL event file.
func readEventsFile(path string) ([]ir.Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("events file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: "open events file", Err: err}
	}
	defer f.Close()

	events, err := ir.DecodeEvents(f)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("decode %s", path), Err: err}
	}
	return events, nil
}

func loadWindow(ctx context.Context, dbPath, windowID string) (*Source, error) {
	st, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	w, log, err := st.LoadLog(ctx, windowID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("window not found: %s", windowID)}
	case store.IsIntegrityError(err):
		return nil, &LoadError{Code: ErrCodeIntegrity, Message: "stored window is corrupt", Err: err}
	case err != nil:
		return nil, &LoadError{Code: ErrCodeStore, Message: "read window", Err: err}
	}
	return &Source{Name: w.ID, Window: &w, Log: log}, nil
}

// openStore opens an existing database. Unlike store.Open it refuses to
// create a new file, so a mistyped path is reported instead of audited as
// an empty store.
func openStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("database not found: %s", path)}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: "open database", Err: err}
	}
	return st, nil
}
