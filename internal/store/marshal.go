package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/allocaudit/internal/ir"
)

// eventRow is the column form of one event.
type eventRow struct {
	Kind        string
	Address     sql.NullInt64
	Size        sql.NullInt64
	Align       sql.NullInt64
	FreeAddress sql.NullInt64
	FreeSize    sql.NullInt64
	FreeAlign   sql.NullInt64
	IsZeroed    string
	IsRelocated string
	Backtrace   string
}

// toRow converts an event through its wire record into columns.
func toRow(e ir.Event) (eventRow, error) {
	rec := ir.ToRecord(e)
	row := eventRow{
		Kind:        string(rec.Kind),
		IsZeroed:    rec.IsZeroed.String(),
		IsRelocated: rec.IsRelocated.String(),
	}
	if rec.Region != nil {
		row.Address, row.Size, row.Align = regionColumns(*rec.Region)
	}
	if rec.Free != nil {
		row.FreeAddress, row.FreeSize, row.FreeAlign = regionColumns(*rec.Free)
	}

	bt, err := marshalBacktrace(rec.Backtrace)
	if err != nil {
		return eventRow{}, err
	}
	row.Backtrace = bt
	return row, nil
}

// event rebuilds the event, validating it the same way the JSON decoder does.
func (row eventRow) event() (ir.Event, error) {
	rec := ir.EventRecord{Kind: ir.Kind(row.Kind)}

	region, err := regionFromColumns(row.Address, row.Size, row.Align)
	if err != nil {
		return nil, fmt.Errorf("region: %w", err)
	}
	rec.Region = region

	free, err := regionFromColumns(row.FreeAddress, row.FreeSize, row.FreeAlign)
	if err != nil {
		return nil, fmt.Errorf("free region: %w", err)
	}
	rec.Free = free

	if rec.IsZeroed, err = ir.ParseTristate(row.IsZeroed); err != nil {
		return nil, err
	}
	if rec.IsRelocated, err = ir.ParseTristate(row.IsRelocated); err != nil {
		return nil, err
	}
	if rec.Backtrace, err = unmarshalBacktrace(row.Backtrace); err != nil {
		return nil, err
	}

	return rec.Event()
}

// regionColumns stores unsigned values bit-for-bit; SQLite integers are
// signed 64-bit.
func regionColumns(r ir.Region) (addr, size, align sql.NullInt64) {
	return sql.NullInt64{Int64: int64(r.Address), Valid: true},
		sql.NullInt64{Int64: int64(r.Size), Valid: true},
		sql.NullInt64{Int64: int64(r.Align), Valid: true}
}

func regionFromColumns(addr, size, align sql.NullInt64) (*ir.Region, error) {
	if !addr.Valid && !size.Valid && !align.Valid {
		return nil, nil
	}
	if !addr.Valid || !size.Valid || !align.Valid {
		return nil, fmt.Errorf("partially null region columns")
	}
	r := ir.NewRegion(ir.Pointer(uint64(addr.Int64)), uint64(size.Int64), uint64(align.Int64))
	return &r, nil
}

// marshalBacktrace converts frames to JSON TEXT.
// HTML escaping is disabled so frames read back byte-identical.
func marshalBacktrace(bt ir.Backtrace) (string, error) {
	if len(bt) == 0 {
		return "[]", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode([]string(bt)); err != nil {
		return "", fmt.Errorf("marshal backtrace: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalBacktrace parses JSON TEXT frames. An empty list becomes nil so
// round-tripped events compare equal to the originals.
func unmarshalBacktrace(data string) (ir.Backtrace, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var frames []string
	if err := json.Unmarshal([]byte(data), &frames); err != nil {
		return nil, fmt.Errorf("unmarshal backtrace: %w", err)
	}
	if len(frames) == 0 {
		return nil, nil
	}
	return ir.Backtrace(frames), nil
}
