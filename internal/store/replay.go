package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/allocaudit/internal/eventlog"
	"github.com/roach88/allocaudit/internal/ir"
)

// IntegrityError reports a stored window whose events no longer hash to
// the digest recorded when it was written.
type IntegrityError struct {
	WindowID string
	Want     string
	Got      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("window %s: digest mismatch: stored %s, computed %s", e.WindowID, e.Want, e.Got)
}

// IsIntegrityError returns true if err is a digest mismatch.
// Uses errors.As to handle wrapped errors.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// LoadLog reads a window's events into a fresh log after checking them
// against the stored digest.
func (s *Store) LoadLog(ctx context.Context, windowID string, opts ...eventlog.Option) (Window, *eventlog.Log, error) {
	w, err := s.ReadWindow(ctx, windowID)
	if err != nil {
		return Window{}, nil, fmt.Errorf("load window %q: %w", windowID, err)
	}

	events, err := s.ReadEvents(ctx, windowID)
	if err != nil {
		return Window{}, nil, fmt.Errorf("load window %q: %w", windowID, err)
	}

	digest, err := ir.WindowDigest(events)
	if err != nil {
		return Window{}, nil, fmt.Errorf("load window %q: %w", windowID, err)
	}
	if digest != w.Digest {
		return Window{}, nil, &IntegrityError{WindowID: windowID, Want: w.Digest, Got: digest}
	}

	return w, eventlog.FromEvents(events, opts...), nil
}
