package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/allocaudit/internal/ir"
)

// Window is the stored header of a measurement window.
type Window struct {
	ID         string `json:"id"`
	Label      string `json:"label,omitempty"`
	Digest     string `json:"digest"`
	EventCount int    `json:"event_count"`
	CreatedSeq int64  `json:"created_seq"`
}

// WriteWindow stores a window and its events in one transaction.
//
// Only w.ID and w.Label are read from w; the digest, event count and
// sequence number are computed. Writes are idempotent on the digest: if
// the same events are already stored, the existing window is returned with
// inserted=false and nothing is written.
func (s *Store) WriteWindow(ctx context.Context, w Window, events []ir.Event) (stored Window, inserted bool, err error) {
	if w.ID == "" {
		return Window{}, false, fmt.Errorf("write window: empty id")
	}

	digest, err := ir.WindowDigest(events)
	if err != nil {
		return Window{}, false, fmt.Errorf("write window: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Window{}, false, fmt.Errorf("write window: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	existing, err := scanWindow(tx.QueryRowContext(ctx, `
		SELECT id, label, digest, event_count, created_seq
		FROM windows
		WHERE digest = ?
	`, digest))
	switch {
	case err == nil:
		slog.Debug("window already stored", "window", existing.ID, "digest", digest)
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return Window{}, false, fmt.Errorf("write window: lookup digest: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_seq), 0) + 1 FROM windows`).Scan(&seq); err != nil {
		return Window{}, false, fmt.Errorf("write window: next seq: %w", err)
	}

	stored = Window{
		ID:         w.ID,
		Label:      w.Label,
		Digest:     digest,
		EventCount: len(events),
		CreatedSeq: seq,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO windows (id, label, digest, event_count, created_seq)
		VALUES (?, ?, ?, ?, ?)
	`, stored.ID, stored.Label, stored.Digest, stored.EventCount, stored.CreatedSeq); err != nil {
		return Window{}, false, fmt.Errorf("write window: insert window: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(window_id, seq, kind, address, size, align, free_address, free_size, free_align, is_zeroed, is_relocated, backtrace)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return Window{}, false, fmt.Errorf("write window: prepare events: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		row, err := toRow(e)
		if err != nil {
			return Window{}, false, fmt.Errorf("write window: event %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			stored.ID,
			i,
			row.Kind,
			row.Address,
			row.Size,
			row.Align,
			row.FreeAddress,
			row.FreeSize,
			row.FreeAlign,
			row.IsZeroed,
			row.IsRelocated,
			row.Backtrace,
		); err != nil {
			return Window{}, false, fmt.Errorf("write window: event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Window{}, false, fmt.Errorf("write window: commit: %w", err)
	}

	slog.Info("window stored",
		"window", stored.ID,
		"events", stored.EventCount,
		"seq", stored.CreatedSeq,
	)
	return stored, true, nil
}

// DeleteWindow removes a window and its events.
// Returns sql.ErrNoRows if the window does not exist.
func (s *Store) DeleteWindow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM windows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete window: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete window %q: %w", id, sql.ErrNoRows)
	}
	return nil
}
