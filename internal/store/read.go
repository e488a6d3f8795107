package store

import (
	"context"
	"fmt"

	"github.com/roach88/allocaudit/internal/ir"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWindow(row rowScanner) (Window, error) {
	var w Window
	if err := row.Scan(&w.ID, &w.Label, &w.Digest, &w.EventCount, &w.CreatedSeq); err != nil {
		return Window{}, err
	}
	return w, nil
}

// ReadWindow retrieves a window header by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadWindow(ctx context.Context, id string) (Window, error) {
	return scanWindow(s.db.QueryRowContext(ctx, `
		SELECT id, label, digest, event_count, created_seq
		FROM windows
		WHERE id = ?
	`, id))
}

// ListWindows returns every window in creation order.
// Returns an empty slice (not nil) if the store is empty.
func (s *Store) ListWindows(ctx context.Context) ([]Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, digest, event_count, created_seq
		FROM windows
		ORDER BY created_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer rows.Close()

	windows := []Window{}
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate windows: %w", err)
	}
	return windows, nil
}

// ReadEvents returns a window's events in recorded order.
// Returns sql.ErrNoRows if the window does not exist.
func (s *Store) ReadEvents(ctx context.Context, windowID string) ([]ir.Event, error) {
	if _, err := s.ReadWindow(ctx, windowID); err != nil {
		return nil, fmt.Errorf("read events for %q: %w", windowID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, address, size, align, free_address, free_size, free_align, is_zeroed, is_relocated, backtrace
		FROM events
		WHERE window_id = ?
		ORDER BY seq ASC
	`, windowID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			seq int64
			row eventRow
		)
		if err := rows.Scan(
			&seq,
			&row.Kind,
			&row.Address,
			&row.Size,
			&row.Align,
			&row.FreeAddress,
			&row.FreeSize,
			&row.FreeAlign,
			&row.IsZeroed,
			&row.IsRelocated,
			&row.Backtrace,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := row.event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// FindWindowByDigest looks a window up by its content digest.
// Returns sql.ErrNoRows if no window has that digest.
func (s *Store) FindWindowByDigest(ctx context.Context, digest string) (Window, error) {
	return scanWindow(s.db.QueryRowContext(ctx, `
		SELECT id, label, digest, event_count, created_seq
		FROM windows
		WHERE digest = ?
	`, digest))
}

// CountEventsByKind tallies a window's events per kind.
func (s *Store) CountEventsByKind(ctx context.Context, windowID string) (map[ir.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM events
		WHERE window_id = ?
		GROUP BY kind
		ORDER BY kind COLLATE BINARY ASC
	`, windowID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[ir.Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[ir.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}
